// Package notify renders invitation notifications and hands them to a mail
// sender, either directly or through the delivery queue.
package notify

import (
	"context"
	"errors"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Kind identifies which notification is being sent.
type Kind string

const (
	// KindInvitation is sent to the invitee when an invitation is created or resent.
	KindInvitation Kind = "invitation"
	// KindReminder is sent to the invitee by the reminder sweep.
	KindReminder Kind = "reminder"
	// KindCancelled tells the invitee their invitation was withdrawn.
	KindCancelled Kind = "cancelled"
	// KindAccepted tells the inviter their invitation was accepted.
	KindAccepted Kind = "accepted"
)

// Kinds lists every notification kind.
var Kinds = []Kind{KindInvitation, KindReminder, KindCancelled, KindAccepted}

// ErrUndeliverable is returned when the recipient has no usable address.
var ErrUndeliverable = errors.New("recipient cannot be notified")

// Recipient is either a raw email address or a known actor.
type Recipient struct {
	Email   string
	ActorID string
}

// Notification is a request to notify one recipient about one invitation.
type Notification struct {
	Kind Kind
	// Template names the message template to render.
	Template   string
	Invitation *models.Invitation
	Recipient  Recipient
}

// Dispatcher delivers notifications. Callers treat every error as non-fatal.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// Sender hands a rendered message to a mail provider.
type Sender interface {
	Send(ctx context.Context, d *models.Delivery) error
}

// Directory resolves actors to addresses. store.ActorStore satisfies it.
type Directory interface {
	Get(ctx context.Context, id string) (*models.Actor, error)
}

// DefaultTemplates maps each kind to its built-in template.
func DefaultTemplates() map[Kind]string {
	return map[Kind]string{
		KindInvitation: TemplateInvitation,
		KindReminder:   TemplateReminder,
		KindCancelled:  TemplateCancelled,
		KindAccepted:   TemplateAccepted,
	}
}
