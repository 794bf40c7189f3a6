package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/store"
)

const invitationColumns = `id, invitable_type, invitable_id, email, token, status, role, metadata,
	invited_by, accepted_by, expires_at, accepted_at, declined_at, cancelled_at,
	last_sent_at, reminder_count, created_at, updated_at`

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *InvitationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create inserts a new invitation and assigns its ID. Returns
// store.ErrTokenConflict without aborting the transaction when the token is taken.
func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	if inv.Status == "" {
		inv.Status = models.InvitationStatusPending
	}

	metadata, err := marshalMetadata(inv.Metadata)
	if err != nil {
		return err
	}
	invitableType, invitableID := invitableArgs(inv.Invitable)

	query := `
		INSERT INTO invitations (
			invitable_type, invitable_id, email, token, status, role, metadata,
			invited_by, expires_at, last_sent_at, reminder_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT ON CONSTRAINT invitations_token_key DO NOTHING
		RETURNING id`

	err = s.conn().QueryRowContext(ctx, query,
		invitableType,
		invitableID,
		inv.Email,
		inv.Token,
		string(inv.Status),
		nullString(inv.Role),
		metadata,
		inv.InvitedBy,
		inv.ExpiresAt,
		inv.LastSentAt,
		inv.ReminderCount,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Scan(&inv.ID)
	// A token collision inserts nothing instead of raising, so an enclosing
	// transaction stays usable for a retry with a fresh token.
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrTokenConflict
	}
	if err != nil {
		if translated := translateInsertError(err); translated != err {
			return translated
		}
		return fmt.Errorf("inserting invitation: %w", err)
	}

	s.logger.Debug("invitation created", "invitation_id", inv.ID, "email", inv.Email)
	return nil
}

// Get retrieves an invitation by ID.
func (s *InvitationStore) Get(ctx context.Context, id int64) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByToken retrieves an invitation by its token.
func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`
	return s.getOne(ctx, query, token)
}

// FindByEmail returns the newest invitation for the email in exactly the given scope.
func (s *InvitationStore) FindByEmail(ctx context.Context, email string, invitable *models.Invitable) (*models.Invitation, error) {
	w := &where{}
	w.add("email = %s", email)
	w.scope(invitable)

	query := `SELECT ` + invitationColumns + ` FROM invitations` + w.String() +
		` ORDER BY created_at DESC, id DESC LIMIT 1`
	return s.getOne(ctx, query, w.args...)
}

// List retrieves invitations matching the filter, newest first.
func (s *InvitationStore) List(ctx context.Context, filter store.ListFilter) ([]*models.Invitation, error) {
	w := &where{}
	if filter.Status != "" {
		w.add("status = %s", string(filter.Status))
	}
	if filter.Invitable != nil || filter.GlobalOnly {
		w.scope(filter.Invitable)
	}
	if filter.Email != "" {
		w.add("email = %s", filter.Email)
	}
	if filter.ValidAt != nil {
		w.add("status = %s", string(models.InvitationStatusPending))
		w.add("(expires_at IS NULL OR expires_at > %s)", *filter.ValidAt)
	}

	query := `SELECT ` + invitationColumns + ` FROM invitations` + w.String() +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += w.bind(" LIMIT %s", filter.Limit)
	}
	if filter.Offset > 0 {
		query += w.bind(" OFFSET %s", filter.Offset)
	}

	return s.getMany(ctx, query, w.args...)
}

// CountByStatus counts invitations per status in one grouped query.
func (s *InvitationStore) CountByStatus(ctx context.Context, invitable *models.Invitable) (map[models.InvitationStatus]int, error) {
	w := &where{}
	if invitable != nil {
		w.scope(invitable)
	}

	query := `SELECT status, COUNT(*) FROM invitations` + w.String() + ` GROUP BY status`
	rows, err := s.conn().QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("counting invitations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.InvitationStatus]int, len(models.InvitationStatuses))
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning invitation count: %w", err)
		}
		counts[models.InvitationStatus(status)] = n
	}

	return counts, rows.Err()
}

// PendingEmails returns which of the given emails have a pending invitation in the scope.
func (s *InvitationStore) PendingEmails(ctx context.Context, emails []string, invitable *models.Invitable) (map[string]bool, error) {
	pending := make(map[string]bool)
	if len(emails) == 0 {
		return pending, nil
	}

	w := &where{}
	w.add("status = %s", string(models.InvitationStatusPending))
	w.add("email = ANY(%s)", pq.Array(emails))
	w.scope(invitable)

	rows, err := s.conn().QueryContext(ctx, `SELECT email FROM invitations`+w.String(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning pending email: %w", err)
		}
		pending[email] = true
	}

	return pending, rows.Err()
}

// Transition persists a status change only if the stored status still equals from.
func (s *InvitationStore) Transition(ctx context.Context, inv *models.Invitation, from models.InvitationStatus) (bool, error) {
	query := `
		UPDATE invitations
		SET status = $1, accepted_at = $2, accepted_by = $3, declined_at = $4,
			cancelled_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8`

	result, err := s.conn().ExecContext(ctx, query,
		string(inv.Status),
		inv.AcceptedAt,
		inv.AcceptedBy,
		inv.DeclinedAt,
		inv.CancelledAt,
		inv.UpdatedAt,
		inv.ID,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("updating invitation status: %w", err)
	}

	return applied(result)
}

// MarkSent stamps last_sent_at on a pending invitation.
func (s *InvitationStore) MarkSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET last_sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`

	result, err := s.conn().ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("marking invitation sent: %w", err)
	}

	return applied(result)
}

// RecordReminder increments reminder_count from expectedCount on a pending invitation.
func (s *InvitationStore) RecordReminder(ctx context.Context, id int64, expectedCount int, now time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET reminder_count = reminder_count + 1, last_sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending' AND reminder_count = $3`

	result, err := s.conn().ExecContext(ctx, query, now, id, expectedCount)
	if err != nil {
		return false, fmt.Errorf("recording reminder: %w", err)
	}

	return applied(result)
}

// ExpirePastDue flips every pending invitation whose expiry has passed to
// expired with a single statement and returns the updated rows.
func (s *InvitationStore) ExpirePastDue(ctx context.Context, now time.Time) ([]*models.Invitation, error) {
	query := `
		UPDATE invitations
		SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING ` + invitationColumns

	expired, err := s.getMany(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expiring invitations: %w", err)
	}
	return expired, nil
}

// DueForReminder returns pending invitations eligible for a reminder, oldest first.
func (s *InvitationStore) DueForReminder(ctx context.Context, q store.ReminderQuery) ([]*models.Invitation, error) {
	w := &where{}
	w.add("status = %s", string(models.InvitationStatusPending))
	w.add("reminder_count <= %s", q.MaxCount)
	w.add("reminder_count < %s", q.MaxReminders)
	w.add("created_at <= %s", q.CreatedBefore)
	w.add("(expires_at IS NULL OR expires_at > %s)", q.Now)
	if len(q.Exclude) > 0 {
		w.add("NOT (id = ANY(%s))", pq.Array(q.Exclude))
	}

	query := `SELECT ` + invitationColumns + ` FROM invitations` + w.String() +
		` ORDER BY created_at ASC, id ASC`

	due, err := s.getMany(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("selecting invitations due for reminder: %w", err)
	}
	return due, nil
}

func (s *InvitationStore) getOne(ctx context.Context, query string, args ...any) (*models.Invitation, error) {
	inv, err := scanInvitation(s.conn().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) getMany(ctx context.Context, query string, args ...any) ([]*models.Invitation, error) {
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row scanner) (*models.Invitation, error) {
	var inv models.Invitation
	var status string
	var invitableType, invitableID, role, invitedBy, acceptedBy sql.NullString
	var metadata []byte
	var expiresAt, acceptedAt, declinedAt, cancelledAt, lastSentAt sql.NullTime

	err := row.Scan(
		&inv.ID, &invitableType, &invitableID, &inv.Email, &inv.Token, &status, &role, &metadata,
		&invitedBy, &acceptedBy, &expiresAt, &acceptedAt, &declinedAt, &cancelledAt,
		&lastSentAt, &inv.ReminderCount, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = models.InvitationStatus(status)
	if invitableType.Valid && invitableID.Valid {
		inv.Invitable = &models.Invitable{Type: invitableType.String, ID: invitableID.String}
	}
	inv.Role = role.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inv.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	inv.InvitedBy = stringPtr(invitedBy)
	inv.AcceptedBy = stringPtr(acceptedBy)
	inv.ExpiresAt = timePtr(expiresAt)
	inv.AcceptedAt = timePtr(acceptedAt)
	inv.DeclinedAt = timePtr(declinedAt)
	inv.CancelledAt = timePtr(cancelledAt)
	inv.LastSentAt = timePtr(lastSentAt)

	return &inv, nil
}

// where accumulates AND-ed conditions with positional parameters.
type where struct {
	conds []string
	args  []any
}

// add appends a condition; %s in cond is replaced by the next placeholder.
func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, w.bind(cond, arg))
}

func (w *where) bind(fragment string, arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf(fragment, fmt.Sprintf("$%d", len(w.args)))
}

// scope restricts to exactly one scope; nil selects global invitations.
func (w *where) scope(invitable *models.Invitable) {
	if invitable == nil {
		w.conds = append(w.conds, "invitable_type IS NULL", "invitable_id IS NULL")
		return
	}
	w.add("invitable_type = %s", invitable.Type)
	w.add("invitable_id = %s", invitable.ID)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func invitableArgs(invitable *models.Invitable) (any, any) {
	if invitable == nil {
		return nil, nil
	}
	return invitable.Type, invitable.ID
}

func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func applied(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
