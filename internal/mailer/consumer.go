package mailer

import (
	"context"
	"time"

	"github.com/cavelog/cavelog/internal/metrics"
	log "github.com/sirupsen/logrus"
)

const defaultEmptyQueueSleep = 5 * time.Second

// Consumer drains a Queue one message at a time.
type Consumer struct {
	queue      Queue
	sender     Sender
	renderer   *Renderer
	emptySleep time.Duration
}

// NewConsumer constructs a Consumer. A non-positive emptySleep uses the default.
func NewConsumer(queue Queue, sender Sender, renderer *Renderer, emptySleep time.Duration) *Consumer {
	if emptySleep <= 0 {
		emptySleep = defaultEmptyQueueSleep
	}
	return &Consumer{queue: queue, sender: sender, renderer: renderer, emptySleep: emptySleep}
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("mailer: consumer started (empty queue sleep %s)", c.emptySleep)
	for {
		if ctx.Err() != nil {
			return nil
		}
		handled, errNext := c.Next(ctx)
		if errNext != nil {
			log.WithError(errNext).Warn("mailer: dequeue failed")
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.emptySleep):
		}
	}
}

// Drain processes messages until the queue is empty and returns how many
// were handled.
func (c *Consumer) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		handled, errNext := c.Next(ctx)
		if errNext != nil {
			return count, errNext
		}
		if !handled {
			return count, nil
		}
		count++
	}
}

// Next handles a single message. It reports false when the queue was empty.
func (c *Consumer) Next(ctx context.Context) (bool, error) {
	msg, errDequeue := c.queue.Dequeue(ctx)
	if errDequeue != nil {
		return false, errDequeue
	}
	if msg == nil {
		return false, nil
	}
	c.deliver(ctx, msg)
	return true, nil
}

func (c *Consumer) deliver(ctx context.Context, msg *Message) {
	name := string(msg.Event.Template)
	rendered, errRender := c.renderer.Render(msg.Event)
	if errRender != nil {
		// Rendering failures do not improve on retry.
		log.WithError(errRender).WithField("template", name).Warn("mailer: dropping message")
		metrics.RecordEmail(name, "dropped")
		msg.Attempts = MaxAttempts - 1
		if errRetry := c.queue.Retry(ctx, msg, errRender); errRetry != nil {
			log.WithError(errRetry).Warn("mailer: record failure")
		}
		return
	}
	errSend := c.sender.Send(ctx, rendered)
	if errSend == nil {
		metrics.RecordEmail(name, "sent")
		if errComplete := c.queue.Complete(ctx, msg); errComplete != nil {
			log.WithError(errComplete).Warn("mailer: complete message")
		}
		return
	}
	if errRetry := c.queue.Retry(ctx, msg, errSend); errRetry != nil {
		log.WithError(errRetry).Warn("mailer: requeue message")
	}
	if msg.Attempts >= MaxAttempts {
		metrics.RecordEmail(name, "dropped")
		log.WithError(errSend).WithFields(log.Fields{
			"template":  name,
			"recipient": msg.Event.Recipient,
			"attempts":  msg.Attempts,
		}).Warn("mailer: giving up on message")
		return
	}
	metrics.RecordEmail(name, "retry")
	log.WithError(errSend).WithField("template", name).Debug("mailer: send failed, requeued")
}
