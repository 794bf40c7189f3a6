package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/inviteonly/internal/models"
)

// Subscriber represents an event stream subscriber.
type Subscriber struct {
	ID string
	// Invitable limits delivery to one scope when set.
	Invitable *models.Invitable
	// Types limits delivery to the listed event types when non-empty.
	Types     map[Type]bool
	Ch        chan Event
	CreatedAt time.Time
}

// Broker manages event subscriptions and publishing.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	history     *History
	logger      *slog.Logger
}

// NewBroker creates a new event broker keeping the last historySize events.
func NewBroker(historySize int, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		history:     NewHistory(historySize),
		logger:      logger,
	}
}

// Subscribe creates a new subscription. A nil invitable receives events for every scope.
func (b *Broker) Subscribe(invitable *models.Invitable, types ...Type) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:        uuid.New().String(),
		Invitable: invitable,
		Ch:        make(chan Event, 64),
		CreatedAt: time.Now(),
	}
	if len(types) > 0 {
		sub.Types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.Types[t] = true
		}
	}

	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "invitable", invitable.String())

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish records the event and sends it to all matching subscribers.
// Subscribers whose buffer is full miss the event.
func (b *Broker) Publish(ctx context.Context, event Event) {
	if event.Invitation == nil {
		return
	}
	b.history.Add(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !matches(sub, event) {
			continue
		}
		select {
		case sub.Ch <- event:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"subscriber_id", sub.ID,
				"event", string(event.Type),
				"invitation_id", event.Invitation.ID,
			)
		}
	}
}

// Recent returns up to n of the latest events matching the subscriber's filters.
func (b *Broker) Recent(sub *Subscriber, n int) []Event {
	var out []Event
	for _, event := range b.history.All() {
		if matches(sub, event) {
			out = append(out, event)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func matches(sub *Subscriber, event Event) bool {
	if len(sub.Types) > 0 && !sub.Types[event.Type] {
		return false
	}
	if sub.Invitable != nil && !models.SameScope(sub.Invitable, event.Invitation.Invitable) {
		return false
	}
	return true
}
