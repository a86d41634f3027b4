package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/config"
)

// DefaultRedisPrefix namespaces limiter keys when the config sets none.
const DefaultRedisPrefix = "cavelog"

// SettingsConfig captures the limiter settings resolved from config.
type SettingsConfig struct {
	Disabled     bool
	RedisEnabled bool
	RedisURL     string
	RedisPrefix  string
	Overrides    map[string]Rate
}

// Rate is a count per period.
type Rate struct {
	Limit  int
	Window time.Duration
}

// SettingsFromConfig builds limiter settings from the application config.
// Invalid rate overrides are reported and skipped.
func SettingsFromConfig(cfg config.Config) (SettingsConfig, error) {
	out := SettingsConfig{
		Disabled:     cfg.RateLimit.Disabled,
		RedisEnabled: cfg.Redis.Enabled(),
		RedisURL:     strings.TrimSpace(cfg.Redis.URL),
		RedisPrefix:  strings.TrimSpace(cfg.Redis.Prefix),
		Overrides:    make(map[string]Rate, len(cfg.RateLimit.Rates)),
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = DefaultRedisPrefix
	}
	out.RedisPrefix += ":ratelimit"

	var errs []string
	for name, raw := range cfg.RateLimit.Rates {
		rate, errParse := ParseRate(raw)
		if errParse != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, errParse))
			continue
		}
		out.Overrides[strings.TrimSpace(name)] = rate
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("rate limit: invalid rates: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// ParseRate parses "<count>/<period>" where period is s, m, h or d with an
// optional multiplier, for example "20/h", "500/d" or "5/10m".
func ParseRate(raw string) (Rate, error) {
	countRaw, periodRaw, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Rate{}, fmt.Errorf("rate %q: missing period", raw)
	}
	limit, errLimit := strconv.Atoi(strings.TrimSpace(countRaw))
	if errLimit != nil || limit < 0 {
		return Rate{}, fmt.Errorf("rate %q: invalid count", raw)
	}
	periodRaw = strings.ToLower(strings.TrimSpace(periodRaw))
	if periodRaw == "" {
		return Rate{}, fmt.Errorf("rate %q: missing period", raw)
	}
	unit := periodRaw[len(periodRaw)-1:]
	multiplier := 1
	if n := strings.TrimSpace(periodRaw[:len(periodRaw)-1]); n != "" {
		parsed, errN := strconv.Atoi(n)
		if errN != nil || parsed <= 0 {
			return Rate{}, fmt.Errorf("rate %q: invalid period", raw)
		}
		multiplier = parsed
	}
	var base time.Duration
	switch unit {
	case "s":
		base = time.Second
	case "m":
		base = time.Minute
	case "h":
		base = time.Hour
	case "d":
		base = 24 * time.Hour
	default:
		return Rate{}, fmt.Errorf("rate %q: unknown period %q", raw, unit)
	}
	return Rate{Limit: limit, Window: base * time.Duration(multiplier)}, nil
}
