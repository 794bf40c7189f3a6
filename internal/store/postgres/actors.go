package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// ActorStore implements store.ActorStore using PostgreSQL.
type ActorStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ActorStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Upsert creates the actor or refreshes its email. An empty email keeps the
// stored one.
func (s *ActorStore) Upsert(ctx context.Context, actor *models.Actor) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO actors (id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), actors.email),
			updated_at = EXCLUDED.updated_at
		RETURNING email, created_at, updated_at`

	err := s.conn().QueryRowContext(ctx, query, actor.ID, actor.Email, now).
		Scan(&actor.Email, &actor.CreatedAt, &actor.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting actor: %w", err)
	}
	return nil
}

// Get retrieves an actor by ID.
func (s *ActorStore) Get(ctx context.Context, id string) (*models.Actor, error) {
	query := `SELECT id, email, created_at, updated_at FROM actors WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByEmail retrieves the most recently updated actor with the email.
func (s *ActorStore) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	if email == "" {
		return nil, nil
	}
	query := `
		SELECT id, email, created_at, updated_at FROM actors
		WHERE lower(email) = lower($1)
		ORDER BY updated_at DESC LIMIT 1`
	return s.getOne(ctx, query, email)
}

// Delete removes the actor; the foreign keys on invitations null the references.
func (s *ActorStore) Delete(ctx context.Context, id string) error {
	if _, err := s.conn().ExecContext(ctx, `DELETE FROM actors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting actor: %w", err)
	}
	s.logger.Debug("actor deleted", "actor_id", id)
	return nil
}

func (s *ActorStore) getOne(ctx context.Context, query string, arg any) (*models.Actor, error) {
	var actor models.Actor
	err := s.conn().QueryRowContext(ctx, query, arg).
		Scan(&actor.ID, &actor.Email, &actor.CreatedAt, &actor.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying actor: %w", err)
	}
	return &actor, nil
}
