package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cavelog/cavelog/internal/config"
	"github.com/wneessen/go-mail"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Rendered) error
}

// SMTPSender delivers mail through the configured SMTP relay.
type SMTPSender struct {
	from   string
	client *mail.Client
}

// NewSMTPSender builds an SMTP client from cfg. Authentication is enabled when
// a username is configured.
func NewSMTPSender(cfg config.EmailConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("mailer: smtp host is required")
	}
	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}
	if user := strings.TrimSpace(cfg.Username); user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(cfg.Password),
		)
	}
	client, errClient := mail.NewClient(host, opts...)
	if errClient != nil {
		return nil, fmt.Errorf("mailer: smtp client: %w", errClient)
	}
	return &SMTPSender{from: cfg.From, client: client}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Rendered) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("mailer: smtp sender not initialized")
	}
	m := mail.NewMsg()
	if errFrom := m.From(s.from); errFrom != nil {
		return fmt.Errorf("mailer: from address: %w", errFrom)
	}
	if errTo := m.To(msg.To); errTo != nil {
		return fmt.Errorf("mailer: recipient: %w", errTo)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if errSend := s.client.DialAndSendWithContext(ctx, m); errSend != nil {
		return fmt.Errorf("mailer: send: %w", errSend)
	}
	return nil
}
