package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
)

type fakeSender struct {
	sent  []Rendered
	fails int
}

func (f *fakeSender) Send(_ context.Context, msg Rendered) error {
	if f.fails > 0 {
		f.fails--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("https://cavelog.example/", "Cave Log")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return r
}

func TestNewEvent_RequiresContext(t *testing.T) {
	_, err := NewEvent(NewComment, "bob@example.com", map[string]any{"name": "Bob"})
	if err == nil || !strings.Contains(err.Error(), "commenter_name") {
		t.Fatalf("expected missing context error, got %v", err)
	}
	if _, err := NewEvent(Template("nope"), "bob@example.com", nil); err == nil {
		t.Fatalf("expected unknown template error")
	}
	if _, err := NewEvent(VerifyNewAccount, " ", map[string]any{"name": "a", "verify_url": "u", "verify_code": "c"}); err == nil {
		t.Fatalf("expected recipient error")
	}
}

func TestRenderer_AllTemplates(t *testing.T) {
	r := newRenderer(t)
	for _, tmpl := range Templates() {
		data := map[string]any{}
		for _, key := range tmpl.Required() {
			data[key] = "value-" + key
		}
		ev, err := NewEvent(tmpl, "someone@example.com", data)
		if err != nil {
			t.Fatalf("%s: %v", tmpl, err)
		}
		out, err := r.Render(ev)
		if err != nil {
			t.Fatalf("%s: render: %v", tmpl, err)
		}
		if out.Subject == "" || strings.Contains(out.Subject, "\n") {
			t.Fatalf("%s: expected single line subject, got %q", tmpl, out.Subject)
		}
		if strings.Contains(out.Body, "<no value>") {
			t.Fatalf("%s: expected all placeholders filled, got %q", tmpl, out.Body)
		}
		if !strings.Contains(out.Body, "value-name") {
			t.Fatalf("%s: expected recipient name in body", tmpl)
		}
	}
}

func TestRenderer_AddsSiteContext(t *testing.T) {
	r := newRenderer(t)
	ev, _ := NewEvent(NotifyEmailChange, "old@example.com", map[string]any{
		"name": "Ann", "old_email": "old@example.com", "new_email": "new@example.com",
	})
	out, err := r.Render(ev)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out.Body, "https://cavelog.example") || !strings.Contains(out.Body, "Cave Log") {
		t.Fatalf("expected site root and title in body, got %q", out.Body)
	}
}

func TestConsumer_OutboxDeliversAndRetries(t *testing.T) {
	conn := openTestDB(t, "mailer_outbox")
	ctx := context.Background()
	queue := NewOutboxQueue(conn)
	emitter := NewEmitter(queue)

	data := map[string]any{"name": "Bob", "requester_name": "Ann", "url": "/friends/"}
	if err := emitter.Emit(ctx, FriendRequestReceived, "bob@example.com", data); err != nil {
		t.Fatalf("emit: %v", err)
	}

	sender := &fakeSender{fails: 1}
	consumer := NewConsumer(queue, sender, newRenderer(t), time.Millisecond)
	n, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 || len(sender.sent) != 1 {
		t.Fatalf("expected one retry then delivery, got %d handled %d sent", n, len(sender.sent))
	}
	if sender.sent[0].Subject != "Ann sent you a friend request" {
		t.Fatalf("unexpected subject %q", sender.sent[0].Subject)
	}
	var row models.EmailOutbox
	if err := conn.First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.SentAt == nil || row.Attempts != 1 || row.LastError == "" {
		t.Fatalf("expected sent row with one failed attempt, got %+v", row)
	}
}

func TestConsumer_DropsAfterMaxAttempts(t *testing.T) {
	conn := openTestDB(t, "mailer_drop")
	ctx := context.Background()
	queue := NewOutboxQueue(conn)
	data := map[string]any{"name": "Ann", "accepter_name": "Bob", "url": "/bob/"}
	if err := NewEmitter(queue).Emit(ctx, FriendRequestAccepted, "ann@example.com", data); err != nil {
		t.Fatalf("emit: %v", err)
	}

	sender := &fakeSender{fails: 10}
	consumer := NewConsumer(queue, sender, newRenderer(t), time.Millisecond)
	n, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxAttempts, n)
	}
	msg, err := queue.Dequeue(ctx)
	if err != nil || msg != nil {
		t.Fatalf("expected message to be dropped, got %+v %v", msg, err)
	}
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	conn := openTestDB(t, "mailer_run")
	ctx, cancel := context.WithCancel(context.Background())
	consumer := NewConsumer(NewOutboxQueue(conn), &fakeSender{}, newRenderer(t), time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop")
	}
}

func TestEmitter_NilQueueDiscards(t *testing.T) {
	data := map[string]any{"name": "a", "verify_url": "u", "verify_code": "c"}
	if err := NewEmitter(nil).Emit(context.Background(), VerifyNewAccount, "a@example.com", data); err != nil {
		t.Fatalf("expected discard, got %v", err)
	}
}

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"event":{"template":"new_comment","recipient":"a@example.com","context":{"name":"A"}},"attempts":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Attempts != 2 || msg.Event.Template != NewComment || msg.Event.Context["name"] != "A" {
		t.Fatalf("unexpected message %+v", msg)
	}
}
