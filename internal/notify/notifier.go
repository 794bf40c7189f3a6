package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Notifier renders notifications and passes them to a Sender.
type Notifier struct {
	renderer  *Renderer
	sender    Sender
	directory Directory
	logger    *slog.Logger
}

// NewNotifier creates a Dispatcher. directory may be nil, in which case
// recipients identified only by actor cannot be reached.
func NewNotifier(renderer *Renderer, sender Sender, directory Directory, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		renderer:  renderer,
		sender:    sender,
		directory: directory,
		logger:    logger,
	}
}

// Dispatch renders the notification and sends it.
func (n *Notifier) Dispatch(ctx context.Context, note *Notification) error {
	to, err := n.resolve(ctx, note.Recipient)
	if err != nil {
		return err
	}

	msg, err := n.renderer.Render(note.Template, note.Invitation)
	if err != nil {
		return err
	}

	delivery := &models.Delivery{
		Kind:         string(note.Kind),
		InvitationID: note.Invitation.ID,
		To:           to,
		Subject:      msg.Subject,
		TextBody:     msg.Text,
		HTMLBody:     msg.HTML,
	}
	if err := n.sender.Send(ctx, delivery); err != nil {
		return fmt.Errorf("sending %s notification: %w", note.Kind, err)
	}

	n.logger.Debug("notification dispatched",
		"kind", string(note.Kind),
		"invitation_id", note.Invitation.ID,
		"to", to,
	)
	return nil
}

func (n *Notifier) resolve(ctx context.Context, r Recipient) (string, error) {
	if r.Email != "" {
		return r.Email, nil
	}
	if r.ActorID == "" || n.directory == nil {
		return "", ErrUndeliverable
	}

	actor, err := n.directory.Get(ctx, r.ActorID)
	if err != nil {
		return "", fmt.Errorf("looking up actor %s: %w", r.ActorID, err)
	}
	if actor == nil || actor.Email == "" {
		return "", ErrUndeliverable
	}
	return actor.Email, nil
}
