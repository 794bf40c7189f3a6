// Package events defines invitation lifecycle events and the in-process
// broker that fans them out to subscribers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Type identifies a lifecycle event.
type Type string

const (
	InvitationCreated   Type = "invitation.created"
	InvitationAccepted  Type = "invitation.accepted"
	InvitationDeclined  Type = "invitation.declined"
	InvitationCancelled Type = "invitation.cancelled"
	InvitationExpired   Type = "invitation.expired"
)

// Event carries a snapshot of the affected invitation.
type Event struct {
	Type       Type               `json:"type"`
	Invitation *models.Invitation `json:"invitation"`
	// Actor is set for acceptances made by a known user.
	Actor      *models.Actor `json:"actor,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// New builds an event holding a copy of inv.
func New(t Type, inv *models.Invitation, at time.Time) Event {
	return Event{Type: t, Invitation: inv.Clone(), OccurredAt: at}
}

// Publisher receives lifecycle events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Multi returns a Publisher that forwards each event to every publisher in order.
func Multi(publishers ...Publisher) Publisher {
	return multi(publishers)
}

type multi []Publisher

func (m multi) Publish(ctx context.Context, event Event) {
	for _, p := range m {
		p.Publish(ctx, event)
	}
}

// LogPublisher writes each event to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs events at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	attrs := []any{
		"event", string(event.Type),
		"invitation_id", event.Invitation.ID,
		"email", event.Invitation.Email,
	}
	if event.Invitation.Invitable != nil {
		attrs = append(attrs, "invitable", event.Invitation.Invitable.String())
	}
	if event.Actor != nil {
		attrs = append(attrs, "actor_id", event.Actor.ID)
	}
	p.logger.InfoContext(ctx, "invitation event", attrs...)
}
