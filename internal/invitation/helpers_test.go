package invitation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/internal/store/memory"
)

var startTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*notify.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n *notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

func (d *recordingDispatcher) ofKind(k notify.Kind) []*notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*notify.Notification
	for _, n := range d.sent {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	svc        *Service
	store      *memory.Store
	clock      *clock
	publisher  *recordingPublisher
	dispatcher *recordingDispatcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.New(),
		clock:      &clock{now: startTime},
		publisher:  &recordingPublisher{},
		dispatcher: &recordingDispatcher{},
	}
	f.svc = NewService(f.store, cfg,
		WithClock(f.clock.Now),
		WithPublisher(f.publisher),
		WithDispatcher(f.dispatcher),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func (f *fixture) invite(t *testing.T, email string) int64 {
	t.Helper()
	inv, err := f.svc.Invite(context.Background(), email, nil, InviteOptions{})
	if err != nil {
		t.Fatalf("Invite(%q) error = %v", email, err)
	}
	return inv.ID
}

func assertKind(t *testing.T, err, kind error) *Error {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want %v", err, kind)
	}
	var derr *Error
	if !errors.As(err, &derr) {
		t.Fatalf("error %v is not an *Error", err)
	}
	return derr
}
