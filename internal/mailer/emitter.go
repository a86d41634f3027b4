package mailer

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Emitter validates and enqueues events on behalf of request handlers.
type Emitter struct {
	queue Queue
}

// NewEmitter wraps queue. A nil queue discards every event.
func NewEmitter(queue Queue) *Emitter {
	return &Emitter{queue: queue}
}

// Emit enqueues an email. Failures are logged and returned but callers are
// expected to carry on with the request.
func (e *Emitter) Emit(ctx context.Context, template Template, recipient string, data map[string]any) error {
	ev, errEvent := NewEvent(template, recipient, data)
	if errEvent != nil {
		log.WithError(errEvent).Warn("mailer: invalid event")
		return errEvent
	}
	if e == nil || e.queue == nil {
		log.WithField("template", string(template)).Debug("mailer: no queue configured, email discarded")
		return nil
	}
	if errEnqueue := e.queue.Enqueue(ctx, ev); errEnqueue != nil {
		log.WithError(errEnqueue).WithField("template", string(template)).Warn("mailer: enqueue failed")
		return errEnqueue
	}
	return nil
}
