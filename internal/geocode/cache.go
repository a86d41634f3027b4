package geocode

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache remembers geocoding results.
type Cache interface {
	Get(ctx context.Context, key string) (Point, bool)
	Set(ctx context.Context, key string, p Point, ttl time.Duration)
}

type memoryItem struct {
	point   Point
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

// Get returns an unexpired entry.
func (c *MemoryCache) Get(_ context.Context, key string) (Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return Point{}, false
	}
	if !c.now().Before(item.expires) {
		delete(c.items, key)
		return Point{}, false
	}
	return item.point, true
}

// Set stores an entry for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, p Point, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{point: p, expires: c.now().Add(ttl)}
}

// RedisCache stores entries in redis and falls back to memory when redis
// fails.
type RedisCache struct {
	client   *redis.Client
	prefix   string
	fallback *MemoryCache
}

// NewRedisCache constructs a RedisCache. A nil client uses memory only.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "cavelog"
	}
	return &RedisCache{client: client, prefix: prefix + ":geocode:", fallback: NewMemoryCache()}
}

// Get reads key from redis, then from memory.
func (c *RedisCache) Get(ctx context.Context, key string) (Point, bool) {
	if c.client != nil {
		raw, errGet := c.client.Get(ctx, c.prefix+key).Bytes()
		switch {
		case errGet == nil:
			var p Point
			if errDecode := json.Unmarshal(raw, &p); errDecode == nil {
				return p, true
			}
		case errGet != redis.Nil:
			log.WithError(errGet).Warn("geocode: redis get failed")
		}
	}
	return c.fallback.Get(ctx, key)
}

// Set writes key to redis, or to memory when redis fails.
func (c *RedisCache) Set(ctx context.Context, key string, p Point, ttl time.Duration) {
	if c.client != nil {
		raw, _ := json.Marshal(p)
		errSet := c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
		if errSet == nil {
			return
		}
		log.WithError(errSet).Warn("geocode: redis set failed")
	}
	c.fallback.Set(ctx, key, p, ttl)
}
