package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers a single HTML email. Implementations must fail loudly:
// any transport problem comes back as an error, never a silent drop.
type Sender interface {
	Send(ctx context.Context, subject, htmlBody, to, from string) error
}

type SendGridSender struct {
	client *sendgrid.Client
}

func NewSendGridSender(apiKey string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
	}
}

func (s *SendGridSender) Send(ctx context.Context, subject, htmlBody, to, from string) error {
	const op = "email.SendGridSender.Send"

	message := mail.NewSingleEmail(mail.NewEmail("", from), subject, mail.NewEmail("", to), "", htmlBody)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("%s: sendgrid returned status %d", op, response.StatusCode)
	}

	return nil
}

// DevSender logs instead of sending. Used when no SendGrid key is
// configured so the reset flow stays testable locally.
type DevSender struct {
	log *slog.Logger
}

func NewDevSender(log *slog.Logger) *DevSender {
	return &DevSender{log: log}
}

func (s *DevSender) Send(ctx context.Context, subject, htmlBody, to, from string) error {
	s.log.InfoContext(ctx, "email suppressed in dev mode",
		"subject", subject,
		"to", to,
		"from", from,
		"body", htmlBody,
	)
	return nil
}
