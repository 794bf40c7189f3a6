package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer delivers messages through the SendGrid v3 API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

// NewSendGridMailer creates a mailer using the given API key and sender identity.
func NewSendGridMailer(apiKey, fromEmail, fromName string, logger *slog.Logger) *SendGridMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger,
	}
}

// Send delivers one message.
func (m *SendGridMailer) Send(ctx context.Context, d *models.Delivery) error {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail("", d.To)
	message := mail.NewSingleEmail(from, d.Subject, to, d.TextBody, d.HTMLBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status %d: %s", resp.StatusCode, resp.Body)
	}

	m.logger.Info("email sent", "kind", d.Kind, "invitation_id", d.InvitationID, "status", resp.StatusCode)
	return nil
}
