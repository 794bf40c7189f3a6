// Package postgres provides a PostgreSQL-backed implementation of the delivery queue.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/queue"
)

// PostgresQueue implements queue.Queue using PostgreSQL.
type PostgresQueue struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed queue.
func NewPostgresQueue(db *sql.DB, logger *slog.Logger) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a delivery to the queue.
// The delivery is serialized to JSON and stored in the delivery_queue table.
func (q *PostgresQueue) Enqueue(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling delivery to JSON: %w", err)
	}

	query := `
		INSERT INTO delivery_queue (id, delivery_data, status, created_at, available_at)
		VALUES ($1, $2, 'pending', $3, $3)`

	if _, err := q.db.ExecContext(ctx, query, d.ID, string(data), d.CreatedAt); err != nil {
		return fmt.Errorf("inserting delivery into queue: %w", err)
	}

	q.logger.Debug("enqueued delivery", "delivery_id", d.ID, "kind", d.Kind)
	return nil
}

// Dequeue retrieves and locks the next waiting delivery that is due.
// Uses SELECT FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*models.Delivery, error) {
	now := time.Now().UTC()
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `
		SELECT id, delivery_data, retry_count
		FROM delivery_queue
		WHERE status = 'pending' AND available_at <= $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var id string
	var data []byte
	var retries int
	err = tx.QueryRowContext(ctx, selectQuery, now).Scan(&id, &data, &retries)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrEmpty
		}
		return nil, fmt.Errorf("selecting delivery from queue: %w", err)
	}

	updateQuery := `
		UPDATE delivery_queue
		SET status = 'processing', started_at = $2
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, updateQuery, id, now); err != nil {
		return nil, fmt.Errorf("updating delivery status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	var d models.Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshaling delivery from JSON: %w", err)
	}
	d.Attempts = retries

	q.logger.Debug("dequeued delivery", "delivery_id", d.ID)
	return &d, nil
}

// Ack removes a processed delivery from the queue.
func (q *PostgresQueue) Ack(ctx context.Context, id string) error {
	query := `
		DELETE FROM delivery_queue
		WHERE id = $1 AND status = 'processing'`

	return q.expectOne(ctx, "deleting delivery from queue", query, id)
}

// Nack makes a failed delivery available for retry once retryAfter has passed.
func (q *PostgresQueue) Nack(ctx context.Context, id string, retryAfter time.Duration) error {
	query := `
		UPDATE delivery_queue
		SET status = 'pending', started_at = NULL, retry_count = retry_count + 1, available_at = $2
		WHERE id = $1 AND status = 'processing'`

	return q.expectOne(ctx, "updating delivery status", query, id, time.Now().UTC().Add(retryAfter))
}

func (q *PostgresQueue) expectOne(ctx context.Context, op, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return queue.ErrDeliveryNotFound
	}
	return nil
}
