package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxAttempts is the number of deliveries tried before a message is dropped.
const MaxAttempts = 3

// Message is a dequeued event together with its delivery state.
type Message struct {
	ID       uint64 `json:"id,omitempty"`
	Event    Event  `json:"event"`
	Attempts int    `json:"attempts"`
}

// Queue stores pending email events.
//
// Dequeue returns nil, nil when the queue is empty. Retry records a failed
// attempt and requeues the message while attempts remain.
type Queue interface {
	Enqueue(ctx context.Context, ev Event) error
	Dequeue(ctx context.Context) (*Message, error)
	Complete(ctx context.Context, msg *Message) error
	Retry(ctx context.Context, msg *Message, cause error) error
}

// RedisQueue is a list based queue: LPUSH to enqueue, RPOP to dequeue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue constructs a RedisQueue under prefix.
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	key := "mail:queue"
	if p := strings.TrimSpace(prefix); p != "" {
		key = p + ":" + key
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, ev Event) error {
	return q.push(ctx, &Message{Event: ev})
}

func (q *RedisQueue) push(ctx context.Context, msg *Message) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("mail queue: redis not initialized")
	}
	payload, errMarshal := json.Marshal(msg)
	if errMarshal != nil {
		return fmt.Errorf("mail queue: encode: %w", errMarshal)
	}
	if errPush := q.client.LPush(ctx, q.key, payload).Err(); errPush != nil {
		return fmt.Errorf("mail queue: lpush: %w", errPush)
	}
	return nil
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	if q == nil || q.client == nil {
		return nil, fmt.Errorf("mail queue: redis not initialized")
	}
	raw, errPop := q.client.RPop(ctx, q.key).Bytes()
	if errPop != nil {
		if errors.Is(errPop, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("mail queue: rpop: %w", errPop)
	}
	return decodeMessage(raw)
}

func decodeMessage(raw []byte) (*Message, error) {
	var msg Message
	if errUnmarshal := json.Unmarshal(raw, &msg); errUnmarshal != nil {
		return nil, fmt.Errorf("mail queue: decode: %w", errUnmarshal)
	}
	return &msg, nil
}

// Complete implements Queue. Popped messages are already gone.
func (q *RedisQueue) Complete(context.Context, *Message) error { return nil }

// Retry implements Queue.
func (q *RedisQueue) Retry(ctx context.Context, msg *Message, _ error) error {
	if msg == nil {
		return nil
	}
	msg.Attempts++
	if msg.Attempts >= MaxAttempts {
		return nil
	}
	return q.push(ctx, msg)
}

// OutboxQueue keeps events in the email_outboxes table.
type OutboxQueue struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOutboxQueue constructs an OutboxQueue.
func NewOutboxQueue(db *gorm.DB) *OutboxQueue {
	return &OutboxQueue{db: db, now: time.Now}
}

// Enqueue implements Queue.
func (q *OutboxQueue) Enqueue(ctx context.Context, ev Event) error {
	if q == nil || q.db == nil {
		return fmt.Errorf("mail outbox: not initialized")
	}
	row := models.EmailOutbox{
		Template:  string(ev.Template),
		Recipient: ev.Recipient,
		Context:   datatypes.JSONMap(ev.Context),
	}
	if errCreate := q.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("mail outbox: enqueue: %w", errCreate)
	}
	return nil
}

// Dequeue implements Queue. Rows stay in the table until completed.
func (q *OutboxQueue) Dequeue(ctx context.Context) (*Message, error) {
	if q == nil || q.db == nil {
		return nil, fmt.Errorf("mail outbox: not initialized")
	}
	var rows []models.EmailOutbox
	errFind := q.db.WithContext(ctx).
		Where("sent_at IS NULL AND attempts < ?", MaxAttempts).
		Order("id ASC").Limit(1).Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("mail outbox: dequeue: %w", errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return &Message{
		ID:       row.ID,
		Attempts: row.Attempts,
		Event: Event{
			Template:  Template(row.Template),
			Recipient: row.Recipient,
			Context:   map[string]any(row.Context),
		},
	}, nil
}

// Complete implements Queue.
func (q *OutboxQueue) Complete(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ID == 0 {
		return nil
	}
	errUpdate := q.db.WithContext(ctx).Model(&models.EmailOutbox{}).
		Where("id = ?", msg.ID).
		Update("sent_at", q.now().UTC()).Error
	if errUpdate != nil {
		return fmt.Errorf("mail outbox: complete: %w", errUpdate)
	}
	return nil
}

// Retry implements Queue. Rows that used every attempt are left in place
// with their last error.
func (q *OutboxQueue) Retry(ctx context.Context, msg *Message, cause error) error {
	if msg == nil || msg.ID == 0 {
		return nil
	}
	msg.Attempts++
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	errUpdate := q.db.WithContext(ctx).Model(&models.EmailOutbox{}).
		Where("id = ?", msg.ID).
		Updates(map[string]any{"attempts": msg.Attempts, "last_error": lastErr}).Error
	if errUpdate != nil {
		return fmt.Errorf("mail outbox: retry: %w", errUpdate)
	}
	return nil
}
