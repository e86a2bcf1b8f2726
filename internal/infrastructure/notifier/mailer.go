package notifier

import (
	"fmt"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"

	"github.com/zemetsskiy/subgate/pkg/config"
)

// Mailer sends plain-text notifications through an SMTP relay with
// STARTTLS. Delivery is best effort: transport failures are the caller's
// to log and drop, never to retry or queue.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

func NewMailer(cfg *config.SMTPConfig, logger zerolog.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

func (m *Mailer) Send(recipient, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", recipient, err)
	}

	m.logger.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Msg("Notification sent")
	return nil
}
