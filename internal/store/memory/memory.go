// Package memory provides an in-process implementation of the store interfaces.
// It mirrors the PostgreSQL constraints: per-scope email uniqueness, token
// uniqueness, conditional updates and nulling of actor references on delete.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/store"
)

// Store implements store.Store in memory.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	invitations map[int64]*models.Invitation
	actors      map[string]*models.Actor
	now         func() time.Time
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		invitations: make(map[int64]*models.Invitation),
		actors:      make(map[string]*models.Actor),
		now:         time.Now,
	}
}

// Invitations returns the InvitationStore.
func (s *Store) Invitations() store.InvitationStore {
	return &invitationStore{s: s}
}

// Actors returns the ActorStore.
func (s *Store) Actors() store.ActorStore {
	return &actorStore{s: s}
}

// WithTx runs fn against the same store. Each individual operation is
// atomic; a failing fn does not roll back earlier writes.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

type invitationStore struct {
	s *Store
}

func (st *invitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invitations {
		if existing.Token == inv.Token {
			return store.ErrTokenConflict
		}
		if existing.Email == inv.Email && models.SameScope(existing.Invitable, inv.Invitable) {
			return store.ErrDuplicate
		}
	}

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now().UTC()
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	if inv.Status == "" {
		inv.Status = models.InvitationStatusPending
	}

	s.nextID++
	inv.ID = s.nextID
	s.invitations[inv.ID] = inv.Clone()
	return nil
}

func (st *invitationStore) Get(ctx context.Context, id int64) (*models.Invitation, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invitations[id].Clone(), nil
}

func (st *invitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invitations {
		if inv.Token == token {
			return inv.Clone(), nil
		}
	}
	return nil, nil
}

func (st *invitationStore) FindByEmail(ctx context.Context, email string, invitable *models.Invitable) (*models.Invitation, error) {
	matches := st.filter(func(inv *models.Invitation) bool {
		return inv.Email == email && models.SameScope(inv.Invitable, invitable)
	})
	if len(matches) == 0 {
		return nil, nil
	}
	sortNewestFirst(matches)
	return matches[0], nil
}

func (st *invitationStore) List(ctx context.Context, filter store.ListFilter) ([]*models.Invitation, error) {
	matches := st.filter(func(inv *models.Invitation) bool {
		if filter.Status != "" && inv.Status != filter.Status {
			return false
		}
		if (filter.Invitable != nil || filter.GlobalOnly) && !models.SameScope(inv.Invitable, filter.Invitable) {
			return false
		}
		if filter.Email != "" && inv.Email != filter.Email {
			return false
		}
		if filter.ValidAt != nil && !inv.IsValidAt(*filter.ValidAt) {
			return false
		}
		return true
	})
	sortNewestFirst(matches)

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func (st *invitationStore) CountByStatus(ctx context.Context, invitable *models.Invitable) (map[models.InvitationStatus]int, error) {
	counts := make(map[models.InvitationStatus]int, len(models.InvitationStatuses))
	for _, inv := range st.filter(func(inv *models.Invitation) bool {
		return invitable == nil || models.SameScope(inv.Invitable, invitable)
	}) {
		counts[inv.Status]++
	}
	return counts, nil
}

func (st *invitationStore) PendingEmails(ctx context.Context, emails []string, invitable *models.Invitable) (map[string]bool, error) {
	wanted := make(map[string]bool, len(emails))
	for _, email := range emails {
		wanted[email] = true
	}

	pending := make(map[string]bool)
	for _, inv := range st.filter(func(inv *models.Invitation) bool {
		return inv.IsPending() && wanted[inv.Email] && models.SameScope(inv.Invitable, invitable)
	}) {
		pending[inv.Email] = true
	}
	return pending, nil
}

func (st *invitationStore) Transition(ctx context.Context, inv *models.Invitation, from models.InvitationStatus) (bool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.invitations[inv.ID]
	if !ok || stored.Status != from {
		return false, nil
	}

	stored.Status = inv.Status
	stored.AcceptedAt = copyTime(inv.AcceptedAt)
	stored.DeclinedAt = copyTime(inv.DeclinedAt)
	stored.CancelledAt = copyTime(inv.CancelledAt)
	stored.AcceptedBy = nil
	if inv.AcceptedBy != nil {
		id := *inv.AcceptedBy
		stored.AcceptedBy = &id
	}
	stored.UpdatedAt = inv.UpdatedAt
	return true, nil
}

func (st *invitationStore) MarkSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.invitations[id]
	if !ok || !stored.IsPending() {
		return false, nil
	}
	stored.MarkAsSent(now)
	return true, nil
}

func (st *invitationStore) RecordReminder(ctx context.Context, id int64, expectedCount int, now time.Time) (bool, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.invitations[id]
	if !ok || !stored.IsPending() || stored.ReminderCount != expectedCount {
		return false, nil
	}
	stored.IncrementReminderCount(now)
	return true, nil
}

func (st *invitationStore) ExpirePastDue(ctx context.Context, now time.Time) ([]*models.Invitation, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Invitation
	for _, inv := range s.invitations {
		if inv.IsPending() && inv.ExpiresAt != nil && !inv.ExpiresAt.After(now) {
			inv.MarkAsExpired(now)
			expired = append(expired, inv.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (st *invitationStore) DueForReminder(ctx context.Context, q store.ReminderQuery) ([]*models.Invitation, error) {
	excluded := make(map[int64]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = true
	}

	due := st.filter(func(inv *models.Invitation) bool {
		return inv.IsPending() &&
			inv.ReminderCount <= q.MaxCount &&
			inv.ReminderCount < q.MaxReminders &&
			!inv.CreatedAt.After(q.CreatedBefore) &&
			(inv.ExpiresAt == nil || inv.ExpiresAt.After(q.Now)) &&
			!excluded[inv.ID]
	})
	sort.Slice(due, func(i, j int) bool {
		if due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due, nil
}

// filter returns clones of every invitation matching keep.
func (st *invitationStore) filter(keep func(*models.Invitation) bool) []*models.Invitation {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Invitation
	for _, inv := range s.invitations {
		if keep(inv) {
			out = append(out, inv.Clone())
		}
	}
	return out
}

func sortNewestFirst(invs []*models.Invitation) {
	sort.Slice(invs, func(i, j int) bool {
		if invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].ID > invs[j].ID
		}
		return invs[i].CreatedAt.After(invs[j].CreatedAt)
	})
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type actorStore struct {
	s *Store
}

func (st *actorStore) Upsert(ctx context.Context, actor *models.Actor) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.actors[actor.ID]; ok {
		if actor.Email != "" {
			existing.Email = actor.Email
		}
		existing.UpdatedAt = now
		actor.Email = existing.Email
		actor.CreatedAt, actor.UpdatedAt = existing.CreatedAt, now
		return nil
	}

	actor.CreatedAt, actor.UpdatedAt = now, now
	stored := *actor
	s.actors[actor.ID] = &stored
	return nil
}

func (st *actorStore) Get(ctx context.Context, id string) (*models.Actor, error) {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if actor, ok := s.actors[id]; ok {
		found := *actor
		return &found, nil
	}
	return nil, nil
}

func (st *actorStore) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	if email == "" {
		return nil, nil
	}

	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *models.Actor
	for _, actor := range s.actors {
		if strings.EqualFold(actor.Email, email) && (match == nil || actor.UpdatedAt.After(match.UpdatedAt)) {
			match = actor
		}
	}
	if match == nil {
		return nil, nil
	}
	found := *match
	return &found, nil
}

func (st *actorStore) Delete(ctx context.Context, id string) error {
	s := st.s
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.actors, id)
	for _, inv := range s.invitations {
		if inv.InvitedBy != nil && *inv.InvitedBy == id {
			inv.InvitedBy = nil
		}
		if inv.AcceptedBy != nil && *inv.AcceptedBy == id {
			inv.AcceptedBy = nil
		}
	}
	return nil
}
