// Package models provides data structures for the invitation service.
package models

import (
	"fmt"
	"time"
)

// InvitationStatus represents the status of an invitation.
type InvitationStatus string

const (
	// InvitationStatusPending indicates the invitation is awaiting a response.
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted indicates the invitation has been accepted.
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusDeclined indicates the invitee declined the invitation.
	InvitationStatusDeclined InvitationStatus = "declined"
	// InvitationStatusExpired indicates the invitation passed its expiry date.
	InvitationStatusExpired InvitationStatus = "expired"
	// InvitationStatusCancelled indicates the invitation was withdrawn.
	InvitationStatusCancelled InvitationStatus = "cancelled"
)

// InvitationStatuses lists every status in declaration order.
var InvitationStatuses = []InvitationStatus{
	InvitationStatusPending,
	InvitationStatusAccepted,
	InvitationStatusDeclined,
	InvitationStatusExpired,
	InvitationStatusCancelled,
}

// ParseInvitationStatus converts a stored or user-supplied value into a status.
func ParseInvitationStatus(s string) (InvitationStatus, error) {
	for _, status := range InvitationStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown invitation status %q", s)
}

// IsTerminal reports whether no further transition is possible from the status.
func (s InvitationStatus) IsTerminal() bool {
	switch s {
	case InvitationStatusAccepted, InvitationStatusDeclined, InvitationStatusExpired, InvitationStatusCancelled:
		return true
	}
	return false
}

// Label returns a human readable name for the status.
func (s InvitationStatus) Label() string {
	switch s {
	case InvitationStatusPending:
		return "Pending"
	case InvitationStatusAccepted:
		return "Accepted"
	case InvitationStatusDeclined:
		return "Declined"
	case InvitationStatusExpired:
		return "Expired"
	case InvitationStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// Invitable is a tagged reference to the parent resource an invitation is scoped to,
// such as a team. A nil *Invitable means the invitation is global.
type Invitable struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String renders the reference as type:id.
func (i *Invitable) String() string {
	if i == nil {
		return ""
	}
	return i.Type + ":" + i.ID
}

// SameScope reports whether two references point at the same scope.
// Two nil references are the same (global) scope.
func SameScope(a, b *Invitable) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Type == b.Type && a.ID == b.ID
}

// Invitation is an invitation sent to an email address.
type Invitation struct {
	ID            int64            `json:"id"`
	Invitable     *Invitable       `json:"invitable,omitempty"`
	Email         string           `json:"email"`
	Token         string           `json:"-"`
	Status        InvitationStatus `json:"status"`
	Role          string           `json:"role,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	InvitedBy     *string          `json:"invited_by,omitempty"`
	AcceptedBy    *string          `json:"accepted_by,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	AcceptedAt    *time.Time       `json:"accepted_at,omitempty"`
	DeclinedAt    *time.Time       `json:"declined_at,omitempty"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty"`
	LastSentAt    *time.Time       `json:"last_sent_at,omitempty"`
	ReminderCount int              `json:"reminder_count"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IsPending returns true if the invitation is awaiting a response.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}

// IsAccepted returns true if the invitation has been accepted.
func (i *Invitation) IsAccepted() bool {
	return i.Status == InvitationStatusAccepted
}

// IsDeclined returns true if the invitation has been declined.
func (i *Invitation) IsDeclined() bool {
	return i.Status == InvitationStatusDeclined
}

// IsCancelled returns true if the invitation has been cancelled.
func (i *Invitation) IsCancelled() bool {
	return i.Status == InvitationStatusCancelled
}

// IsExpired returns true if the invitation has expired.
func (i *Invitation) IsExpired() bool {
	return i.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the invitation is expired at the given instant. An
// invitation whose expiry has passed counts as expired even before a sweep has
// persisted the expired status.
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	if i.Status == InvitationStatusExpired {
		return true
	}
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// IsValid returns true if the invitation can be accepted.
func (i *Invitation) IsValid() bool {
	return i.IsValidAt(time.Now())
}

// IsValidAt reports whether the invitation is pending and not expired at now.
func (i *Invitation) IsValidAt(now time.Time) bool {
	return i.IsPending() && !i.IsExpiredAt(now)
}

// MarkAsAccepted records acceptance. actorID may be nil for anonymous acceptance.
func (i *Invitation) MarkAsAccepted(actorID *string, now time.Time) {
	i.Status = InvitationStatusAccepted
	i.AcceptedAt = timePtr(now)
	if actorID != nil {
		id := *actorID
		i.AcceptedBy = &id
	}
	i.UpdatedAt = now
}

// MarkAsDeclined records that the invitee declined.
func (i *Invitation) MarkAsDeclined(now time.Time) {
	i.Status = InvitationStatusDeclined
	i.DeclinedAt = timePtr(now)
	i.UpdatedAt = now
}

// MarkAsCancelled records that the invitation was withdrawn.
func (i *Invitation) MarkAsCancelled(now time.Time) {
	i.Status = InvitationStatusCancelled
	i.CancelledAt = timePtr(now)
	i.UpdatedAt = now
}

// MarkAsExpired persists the lazily computed expiry as a status.
func (i *Invitation) MarkAsExpired(now time.Time) {
	i.Status = InvitationStatusExpired
	i.UpdatedAt = now
}

// MarkAsSent stamps the last delivery time.
func (i *Invitation) MarkAsSent(now time.Time) {
	i.LastSentAt = timePtr(now)
	i.UpdatedAt = now
}

// IncrementReminderCount records one more reminder delivery.
func (i *Invitation) IncrementReminderCount(now time.Time) {
	i.ReminderCount++
	i.LastSentAt = timePtr(now)
	i.UpdatedAt = now
}

// Clone returns a deep copy, safe to hand to event subscribers.
func (i *Invitation) Clone() *Invitation {
	if i == nil {
		return nil
	}
	c := *i
	if i.Invitable != nil {
		inv := *i.Invitable
		c.Invitable = &inv
	}
	if i.Metadata != nil {
		c.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	c.InvitedBy = stringPtrCopy(i.InvitedBy)
	c.AcceptedBy = stringPtrCopy(i.AcceptedBy)
	c.ExpiresAt = timePtrCopy(i.ExpiresAt)
	c.AcceptedAt = timePtrCopy(i.AcceptedAt)
	c.DeclinedAt = timePtrCopy(i.DeclinedAt)
	c.CancelledAt = timePtrCopy(i.CancelledAt)
	c.LastSentAt = timePtrCopy(i.LastSentAt)
	return &c
}

// InvitableName returns the display name of the parent resource, if one was recorded
// in metadata under "invitable_name".
func (i *Invitation) InvitableName() string {
	if name, ok := i.Metadata["invitable_name"].(string); ok {
		return name
	}
	return ""
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func timePtrCopy(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func stringPtrCopy(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
