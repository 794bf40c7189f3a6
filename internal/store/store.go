// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
)

var (
	// ErrDuplicate is returned when an invitation already exists for the
	// email within the same scope.
	ErrDuplicate = errors.New("invitation already exists for this email and scope")
	// ErrTokenConflict is returned when a generated token collides with an
	// existing one.
	ErrTokenConflict = errors.New("invitation token already in use")
)

// ListFilter narrows an invitation listing.
type ListFilter struct {
	// Status restricts results to one status when non-empty.
	Status models.InvitationStatus
	// Invitable restricts results to one scope. When nil, GlobalOnly decides
	// between rows without a scope and rows in every scope.
	Invitable  *models.Invitable
	GlobalOnly bool
	// Email restricts results to one address.
	Email string
	// ValidAt keeps only pending rows that have not expired at this instant.
	ValidAt *time.Time
	Limit   int
	Offset  int
}

// ReminderQuery selects pending invitations due for a reminder at one threshold.
type ReminderQuery struct {
	// MaxCount is the highest reminder_count a row may have to qualify.
	MaxCount int
	// MaxReminders caps the total number of reminders per invitation.
	MaxReminders int
	// CreatedBefore is the latest creation time that qualifies.
	CreatedBefore time.Time
	// Now is used to skip rows that have logically expired.
	Now time.Time
	// Exclude lists invitation IDs already reminded in the current run.
	Exclude []int64
}

// InvitationStore defines operations for invitation management.
type InvitationStore interface {
	// Create inserts a new invitation and assigns its ID. Returns ErrDuplicate
	// when the (scope, email) pair is taken and ErrTokenConflict when the token is.
	Create(ctx context.Context, inv *models.Invitation) error
	// Get retrieves an invitation by ID. Returns nil when missing.
	Get(ctx context.Context, id int64) (*models.Invitation, error)
	// GetByToken retrieves an invitation by its token. Returns nil when missing.
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	// FindByEmail returns the most recently created invitation for the email
	// in exactly the given scope; a nil invitable means the global scope.
	FindByEmail(ctx context.Context, email string, invitable *models.Invitable) (*models.Invitation, error)
	// List retrieves invitations matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*models.Invitation, error)
	// CountByStatus counts invitations per status. A nil invitable counts every scope.
	CountByStatus(ctx context.Context, invitable *models.Invitable) (map[models.InvitationStatus]int, error)
	// PendingEmails returns which of the given emails already have a pending
	// invitation in exactly the given scope.
	PendingEmails(ctx context.Context, emails []string, invitable *models.Invitable) (map[string]bool, error)
	// Transition persists the status and terminal fields of inv only if the
	// stored status still equals from. Reports whether the row was updated.
	Transition(ctx context.Context, inv *models.Invitation, from models.InvitationStatus) (bool, error)
	// MarkSent stamps last_sent_at on a pending invitation.
	MarkSent(ctx context.Context, id int64, now time.Time) (bool, error)
	// RecordReminder increments reminder_count from expectedCount and stamps
	// last_sent_at, only while the invitation is pending.
	RecordReminder(ctx context.Context, id int64, expectedCount int, now time.Time) (bool, error)
	// ExpirePastDue moves every pending invitation whose expiry is at or
	// before now to expired in one statement and returns the affected rows.
	ExpirePastDue(ctx context.Context, now time.Time) ([]*models.Invitation, error)
	// DueForReminder returns pending invitations matching the reminder query,
	// oldest first.
	DueForReminder(ctx context.Context, q ReminderQuery) ([]*models.Invitation, error)
}

// ActorStore defines operations for the users that send and accept invitations.
type ActorStore interface {
	// Upsert creates the actor or refreshes its email. An empty email keeps
	// the stored one.
	Upsert(ctx context.Context, actor *models.Actor) error
	// Get retrieves an actor by ID. Returns nil when missing.
	Get(ctx context.Context, id string) (*models.Actor, error)
	// GetByEmail retrieves an actor by email. Returns nil when missing.
	GetByEmail(ctx context.Context, email string) (*models.Actor, error)
	// Delete removes the actor. Invitations referencing it keep existing with
	// invited_by and accepted_by cleared.
	Delete(ctx context.Context, id string) error
}

// Store is the main interface for database operations.
type Store interface {
	// Invitations returns the InvitationStore for invitation operations.
	Invitations() InvitationStore
	// Actors returns the ActorStore for actor operations.
	Actors() ActorStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
