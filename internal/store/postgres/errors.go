package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/narvanalabs/inviteonly/internal/store"
)

const (
	uniqueViolationCode = "23505"

	scopeEmailConstraint = "invitations_scope_email_key"
)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return pgErr, true
	}
	return nil, false
}

// translateInsertError maps the scope/email unique violation raised by an
// invitation insert onto store.ErrDuplicate. Token collisions never raise.
func translateInsertError(err error) error {
	pgErr, ok := isUniqueViolation(err)
	if !ok {
		return err
	}
	if pgErr.ConstraintName == scopeEmailConstraint {
		return store.ErrDuplicate
	}
	return err
}
