package models

import "time"

// Actor is a user known to the invitation service. Invitations hold weak references
// to actors through InvitedBy and AcceptedBy.
type Actor struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActorID returns a pointer to the actor's ID, or nil for a nil actor.
func ActorID(a *Actor) *string {
	if a == nil || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}
