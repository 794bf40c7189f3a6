// Package queue provides notification delivery queue interfaces and implementations.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Common errors returned by queue operations.
var (
	// ErrEmpty is returned when no deliveries are waiting in the queue.
	ErrEmpty = errors.New("no deliveries available")
	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("delivery not found")
)

// Queue defines the interface for delivery queue operations.
type Queue interface {
	// Enqueue adds a rendered notification to the queue.
	Enqueue(ctx context.Context, d *models.Delivery) error

	// Dequeue retrieves and locks the oldest waiting delivery that is due.
	// Attempts on the returned value counts previous failed attempts.
	// Returns ErrEmpty if nothing is waiting.
	Dequeue(ctx context.Context) (*models.Delivery, error)

	// Ack removes a delivered or abandoned delivery from the queue.
	Ack(ctx context.Context, id string) error

	// Nack returns a failed delivery to the queue for another attempt. It is
	// not dequeued again until retryAfter has passed.
	Nack(ctx context.Context, id string, retryAfter time.Duration) error
}
