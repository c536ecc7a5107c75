package mailer

import (
	"context"
	"fmt"

	"catalog-backend/internal/config"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New returns an SMTP sender, or a LogSender when no SMTP host is configured.
func New(cfg *config.Config) Sender {
	if cfg.SMTPHost == "" {
		return LogSender{}
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail to %s could not be sent: %w", to, err)
	}
	return nil
}

// LogSender writes mails to the log. Used in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, body string) error {
	zap.L().Info("mail (not sent, SMTP disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
