// Package memory provides an in-process delivery queue.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/queue"
)

// Queue implements queue.Queue with a FIFO slice.
type Queue struct {
	mu         sync.Mutex
	pending    []entry
	processing map[string]*models.Delivery
}

// entry is a waiting delivery and the earliest time it may be dequeued.
type entry struct {
	delivery *models.Delivery
	due      time.Time
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{processing: make(map[string]*models.Delivery)}
}

// Enqueue adds a delivery to the back of the queue.
func (q *Queue) Enqueue(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stored := *d
	q.pending = append(q.pending, entry{delivery: &stored})
	return nil
}

// Dequeue takes the oldest waiting delivery that is due.
func (q *Queue) Dequeue(ctx context.Context) (*models.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, e := range q.pending {
		if e.due.After(now) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.processing[e.delivery.ID] = e.delivery

		out := *e.delivery
		return &out, nil
	}
	return nil, queue.ErrEmpty
}

// Ack drops a delivery that is being processed.
func (q *Queue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.processing[id]; !ok {
		return queue.ErrDeliveryNotFound
	}
	delete(q.processing, id)
	return nil
}

// Nack puts a delivery back at the end of the queue with one more attempt
// recorded. It becomes due again after retryAfter.
func (q *Queue) Nack(ctx context.Context, id string, retryAfter time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	d, ok := q.processing[id]
	if !ok {
		return queue.ErrDeliveryNotFound
	}
	delete(q.processing, id)
	d.Attempts++
	q.pending = append(q.pending, entry{delivery: d, due: time.Now().Add(retryAfter)})
	return nil
}

// Len returns the number of waiting deliveries, due or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
