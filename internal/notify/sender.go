package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/config"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	from   string
	client *mail.Client
}

// NewSMTPSender builds a sender from configuration. Authentication is only
// enabled when a username is configured.
func NewSMTPSender(cfg *config.Config) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &SMTPSender{from: cfg.MailFrom, client: client}, nil
}

// Send builds and delivers an HTML message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the envelope.
func (s *LogSender) Send(_ context.Context, to, subject, html string) error {
	s.logger.Info("email (not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("html_bytes", len(html)),
	)
	return nil
}
