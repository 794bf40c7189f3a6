// Package invitation implements the invitation lifecycle: creating invitations,
// answering them by token, withdrawing and resending them, and the periodic
// expiry and reminder sweeps.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/internal/store"
	"github.com/narvanalabs/inviteonly/internal/token"
	"github.com/narvanalabs/inviteonly/internal/validation"
)

// maxTokenAttempts bounds retries after a token collision.
const maxTokenAttempts = 3

// Service orchestrates invitation state changes over a store.
type Service struct {
	store      store.Store
	cfg        Config
	publisher  events.Publisher
	dispatcher notify.Dispatcher
	now        func() time.Time
	newToken   func() (string, error)
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where lifecycle events go. Defaults to events.Discard.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithDispatcher sets the notification dispatcher. Without one, no
// notifications are sent.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenGenerator overrides token.Generate.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newToken = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new invitation service.
func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     st,
		cfg:       cfg.normalized(),
		publisher: events.Discard,
		now:       time.Now,
		newToken:  token.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.Discard
	}
	return s
}

// Config returns the policy the service runs with.
func (s *Service) Config() Config {
	return s.cfg
}

// InviteOptions carries the optional fields of a new invitation.
type InviteOptions struct {
	Role     string
	Metadata map[string]any
	// ExpiresAt overrides the configured expiry.
	ExpiresAt *time.Time
	// InvitedBy is recorded as the inviter and receives the acceptance notice.
	InvitedBy *models.Actor
}

// Invite creates a pending invitation and sends it to email.
func (s *Service) Invite(ctx context.Context, email string, invitable *models.Invitable, opts InviteOptions) (*models.Invitation, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, invalidEmailError(email, err)
	}
	if !s.cfg.allowsInvitable(invitable) {
		return nil, invalidInvitableError(invitable)
	}

	now := s.now().UTC()
	inv := &models.Invitation{
		Email:     email,
		Status:    models.InvitationStatusPending,
		Role:      opts.Role,
		Metadata:  opts.Metadata,
		InvitedBy: models.ActorID(opts.InvitedBy),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if invitable != nil {
		scope := *invitable
		inv.Invitable = &scope
	}
	switch {
	case opts.ExpiresAt != nil:
		at := opts.ExpiresAt.UTC()
		inv.ExpiresAt = &at
	case s.cfg.ExpirationEnabled:
		at := now.AddDate(0, 0, s.cfg.ExpirationDays)
		inv.ExpiresAt = &at
	}
	// Creation counts as the first send.
	inv.MarkAsSent(now)

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if opts.InvitedBy != nil && opts.InvitedBy.ID != "" {
			if err := tx.Actors().Upsert(ctx, opts.InvitedBy); err != nil {
				return fmt.Errorf("recording inviter: %w", err)
			}
		}
		return s.create(ctx, tx, inv)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, duplicateError(email)
		}
		return nil, err
	}

	s.logger.Info("invitation created",
		"invitation_id", inv.ID,
		"email", inv.Email,
		"invitable", inv.Invitable.String(),
	)
	s.publish(ctx, events.New(events.InvitationCreated, inv, now))
	s.notify(ctx, notify.KindInvitation, inv, notify.Recipient{Email: inv.Email})
	return inv, nil
}

func (s *Service) create(ctx context.Context, tx store.Store, inv *models.Invitation) error {
	var err error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		inv.Token, err = s.newToken()
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
		err = tx.Invitations().Create(ctx, inv)
		if !errors.Is(err, store.ErrTokenConflict) {
			break
		}
		s.logger.Warn("invitation token collision, regenerating", "attempt", attempt+1)
	}
	if err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}
	return nil
}

// Accept marks the invitation identified by token as accepted. actor may be
// nil for an anonymous acceptance.
func (s *Service) Accept(ctx context.Context, tok string, actor *models.Actor) (*models.Invitation, error) {
	inv, err := s.Find(ctx, tok)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := checkAcceptable(inv, now); err != nil {
		return nil, err
	}

	if actor != nil && actor.ID != "" {
		if err := s.store.Actors().Upsert(ctx, actor); err != nil {
			return nil, fmt.Errorf("recording accepting actor: %w", err)
		}
	}

	inv.MarkAsAccepted(models.ActorID(actor), now)
	ok, err := s.store.Invitations().Transition(ctx, inv, models.InvitationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("accepting invitation %d: %w", inv.ID, err)
	}
	if !ok {
		return nil, s.raceError(ctx, inv.ID, func(cur *models.Invitation) error {
			return checkAcceptable(cur, now)
		})
	}

	s.logger.Info("invitation accepted", "invitation_id", inv.ID, "email", inv.Email)
	event := events.New(events.InvitationAccepted, inv, now)
	event.Actor = actor
	s.publish(ctx, event)
	if inv.InvitedBy != nil {
		s.notify(ctx, notify.KindAccepted, inv, notify.Recipient{ActorID: *inv.InvitedBy})
	}
	return inv, nil
}

// checkAcceptable applies the accept preconditions in order; the first match wins.
func checkAcceptable(inv *models.Invitation, now time.Time) error {
	switch {
	case inv.IsAccepted():
		return alreadyAcceptedError(inv)
	case inv.IsExpiredAt(now):
		return expiredError(inv)
	case inv.IsCancelled():
		return invalidStateError(inv, ReasonCancelled)
	case inv.IsDeclined():
		return invalidStateError(inv, ReasonDeclined)
	}
	return nil
}

// Decline marks the invitation identified by token as declined. Only the
// status is checked, so a pending invitation past its expiry can still be
// declined until a sweep marks it expired.
func (s *Service) Decline(ctx context.Context, tok string) (*models.Invitation, error) {
	inv, err := s.Find(ctx, tok)
	if err != nil {
		return nil, err
	}
	if !inv.IsPending() {
		return nil, invalidStateError(inv, ReasonNotDeclinable)
	}

	now := s.now().UTC()
	inv.MarkAsDeclined(now)
	ok, err := s.store.Invitations().Transition(ctx, inv, models.InvitationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("declining invitation %d: %w", inv.ID, err)
	}
	if !ok {
		return nil, s.raceError(ctx, inv.ID, func(cur *models.Invitation) error {
			if !cur.IsPending() {
				return invalidStateError(cur, ReasonNotDeclinable)
			}
			return nil
		})
	}

	s.logger.Info("invitation declined", "invitation_id", inv.ID, "email", inv.Email)
	s.publish(ctx, events.New(events.InvitationDeclined, inv, now))
	return inv, nil
}

// Cancel withdraws the pending invitation with the given id. When notifyInvitee
// is set the invitee is told about it.
func (s *Service) Cancel(ctx context.Context, id int64, notifyInvitee bool) (*models.Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.CancelInvitation(ctx, inv, notifyInvitee)
}

// CancelInvitation withdraws an invitation already loaded by the caller.
func (s *Service) CancelInvitation(ctx context.Context, inv *models.Invitation, notifyInvitee bool) (*models.Invitation, error) {
	if !inv.IsPending() {
		return nil, invalidStateError(inv, ReasonNotCancellable)
	}

	now := s.now().UTC()
	inv.MarkAsCancelled(now)
	ok, err := s.store.Invitations().Transition(ctx, inv, models.InvitationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("cancelling invitation %d: %w", inv.ID, err)
	}
	if !ok {
		return nil, s.raceError(ctx, inv.ID, func(cur *models.Invitation) error {
			if !cur.IsPending() {
				return invalidStateError(cur, ReasonNotCancellable)
			}
			return nil
		})
	}

	s.logger.Info("invitation cancelled", "invitation_id", inv.ID, "email", inv.Email)
	s.publish(ctx, events.New(events.InvitationCancelled, inv, now))
	if notifyInvitee {
		s.notify(ctx, notify.KindCancelled, inv, notify.Recipient{Email: inv.Email})
	}
	return inv, nil
}

// Resend sends the invitation with the given id again. Status, token and
// expiry are unchanged.
func (s *Service) Resend(ctx context.Context, id int64) (*models.Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ResendInvitation(ctx, inv)
}

// ResendInvitation resends an invitation already loaded by the caller.
func (s *Service) ResendInvitation(ctx context.Context, inv *models.Invitation) (*models.Invitation, error) {
	now := s.now().UTC()
	if !inv.IsValidAt(now) {
		return nil, invalidStateError(inv, ReasonNotResendable)
	}

	ok, err := s.store.Invitations().MarkSent(ctx, inv.ID, now)
	if err != nil {
		return nil, fmt.Errorf("resending invitation %d: %w", inv.ID, err)
	}
	if !ok {
		return nil, s.raceError(ctx, inv.ID, func(cur *models.Invitation) error {
			if !cur.IsValidAt(now) {
				return invalidStateError(cur, ReasonNotResendable)
			}
			return nil
		})
	}
	inv.MarkAsSent(now)

	s.logger.Info("invitation resent", "invitation_id", inv.ID, "email", inv.Email)
	s.notify(ctx, notify.KindInvitation, inv, notify.Recipient{Email: inv.Email})
	return inv, nil
}

// raceError builds the error for a compare-and-set that did not apply. The row
// is re-read so the caller sees why the transition was refused.
func (s *Service) raceError(ctx context.Context, id int64, check func(*models.Invitation) error) error {
	cur, err := s.store.Invitations().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("reloading invitation %d: %w", id, err)
	}
	if cur == nil {
		return notFoundError(id)
	}
	if err := check(cur); err != nil {
		return err
	}
	return invalidStateError(cur, ReasonConcurrentUpdate)
}

// Find returns the invitation for token or ErrTokenNotFound.
func (s *Service) Find(ctx context.Context, tok string) (*models.Invitation, error) {
	if tok == "" {
		return nil, tokenNotFoundError()
	}
	inv, err := s.store.Invitations().GetByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("finding invitation by token: %w", err)
	}
	if inv == nil {
		return nil, tokenNotFoundError()
	}
	return inv, nil
}

// Get returns the invitation with the given id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Invitation, error) {
	inv, err := s.store.Invitations().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting invitation %d: %w", id, err)
	}
	if inv == nil {
		return nil, notFoundError(id)
	}
	return inv, nil
}

// FindByEmail returns the newest invitation for email in exactly the given
// scope; nil means invitations without an invitable. Returns nil when none exists.
func (s *Service) FindByEmail(ctx context.Context, email string, invitable *models.Invitable) (*models.Invitation, error) {
	inv, err := s.store.Invitations().FindByEmail(ctx, email, invitable)
	if err != nil {
		return nil, fmt.Errorf("finding invitation by email: %w", err)
	}
	return inv, nil
}

// List returns invitations matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*models.Invitation, error) {
	invs, err := s.store.Invitations().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}

// Pending lists pending invitations in the scope; nil lists every scope.
func (s *Service) Pending(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.byStatus(ctx, models.InvitationStatusPending, invitable)
}

// Accepted lists accepted invitations in the scope; nil lists every scope.
func (s *Service) Accepted(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.byStatus(ctx, models.InvitationStatusAccepted, invitable)
}

// Declined lists declined invitations in the scope; nil lists every scope.
func (s *Service) Declined(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.byStatus(ctx, models.InvitationStatusDeclined, invitable)
}

// Expired lists invitations whose expired status has been persisted.
func (s *Service) Expired(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.byStatus(ctx, models.InvitationStatusExpired, invitable)
}

// Cancelled lists cancelled invitations in the scope; nil lists every scope.
func (s *Service) Cancelled(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.byStatus(ctx, models.InvitationStatusCancelled, invitable)
}

// Valid lists pending invitations that have not expired yet.
func (s *Service) Valid(ctx context.Context, invitable *models.Invitable) ([]*models.Invitation, error) {
	now := s.now().UTC()
	return s.List(ctx, store.ListFilter{Invitable: invitable, ValidAt: &now})
}

func (s *Service) byStatus(ctx context.Context, status models.InvitationStatus, invitable *models.Invitable) ([]*models.Invitation, error) {
	return s.List(ctx, store.ListFilter{Status: status, Invitable: invitable})
}

// Stats counts invitations per status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Declined  int `json:"declined"`
	Expired   int `json:"expired"`
	Cancelled int `json:"cancelled"`
}

// Stats counts invitations in the scope; nil counts every scope.
func (s *Service) Stats(ctx context.Context, invitable *models.Invitable) (Stats, error) {
	counts, err := s.store.Invitations().CountByStatus(ctx, invitable)
	if err != nil {
		return Stats{}, fmt.Errorf("counting invitations: %w", err)
	}
	st := Stats{
		Pending:   counts[models.InvitationStatusPending],
		Accepted:  counts[models.InvitationStatusAccepted],
		Declined:  counts[models.InvitationStatusDeclined],
		Expired:   counts[models.InvitationStatusExpired],
		Cancelled: counts[models.InvitationStatusCancelled],
	}
	st.Total = st.Pending + st.Accepted + st.Declined + st.Expired + st.Cancelled
	return st, nil
}

// HasPendingInvitation reports whether email has a pending invitation in exactly the scope.
func (s *Service) HasPendingInvitation(ctx context.Context, email string, invitable *models.Invitable) (bool, error) {
	pending, err := s.store.Invitations().PendingEmails(ctx, []string{email}, invitable)
	if err != nil {
		return false, fmt.Errorf("checking pending invitation: %w", err)
	}
	return pending[email], nil
}

// CancelByEmail cancels the pending invitation for email in the scope.
// Reports false when there was nothing to cancel.
func (s *Service) CancelByEmail(ctx context.Context, email string, invitable *models.Invitable, notifyInvitee bool) (bool, error) {
	inv, err := s.FindByEmail(ctx, email, invitable)
	if err != nil {
		return false, err
	}
	if inv == nil || !inv.IsPending() {
		return false, nil
	}
	if _, err := s.CancelInvitation(ctx, inv, notifyInvitee); err != nil {
		return false, err
	}
	return true, nil
}

// ResendByEmail resends the valid invitation for email in the scope.
// Reports false when there was nothing to resend.
func (s *Service) ResendByEmail(ctx context.Context, email string, invitable *models.Invitable) (bool, error) {
	inv, err := s.FindByEmail(ctx, email, invitable)
	if err != nil {
		return false, err
	}
	if inv == nil || !inv.IsValidAt(s.now().UTC()) {
		return false, nil
	}
	if _, err := s.ResendInvitation(ctx, inv); err != nil {
		return false, err
	}
	return true, nil
}

// ForgetActor deletes an actor. Invitations it sent or accepted are kept with
// the reference cleared.
func (s *Service) ForgetActor(ctx context.Context, actorID string) error {
	if err := s.store.Actors().Delete(ctx, actorID); err != nil {
		return fmt.Errorf("deleting actor %s: %w", actorID, err)
	}
	s.logger.Info("actor forgotten", "actor_id", actorID)
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	s.publisher.Publish(ctx, event)
}

// notify dispatches a notification if the kind is enabled. Failures are logged
// and never returned.
func (s *Service) notify(ctx context.Context, kind notify.Kind, inv *models.Invitation, to notify.Recipient) bool {
	if s.dispatcher == nil {
		return false
	}
	template, enabled := s.cfg.template(kind)
	if !enabled {
		return false
	}

	err := s.dispatcher.Dispatch(ctx, &notify.Notification{
		Kind:       kind,
		Template:   template,
		Invitation: inv.Clone(),
		Recipient:  to,
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, notify.ErrUndeliverable):
		s.logger.Debug("notification skipped, recipient unreachable",
			"kind", string(kind),
			"invitation_id", inv.ID,
		)
	default:
		s.logger.Warn("notification failed",
			"kind", string(kind),
			"invitation_id", inv.ID,
			"error", err,
		)
	}
	return false
}
