package notify

import (
	"context"
	"log/slog"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a development mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(ctx context.Context, d *models.Delivery) error {
	m.logger.InfoContext(ctx, "email",
		"kind", d.Kind,
		"invitation_id", d.InvitationID,
		"to", d.To,
		"subject", d.Subject,
		"body", d.TextBody,
	)
	return nil
}
