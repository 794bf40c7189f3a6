package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeJobs struct {
	mu        sync.Mutex
	expired   int
	reminders int
	order     []string
	err       error
}

func (f *fakeJobs) MarkExpiredInvitations(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired++
	f.order = append(f.order, "expire")
	return 2, f.err
}

func (f *fakeJobs) SendReminders(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders++
	f.order = append(f.order, "remind")
	return 3, nil
}

func (f *fakeJobs) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired, f.reminders
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceExpiresBeforeReminding(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, time.Hour, quietLogger())

	res, err := s.RunOnce(context.Background(), true)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res != (Result{Expired: 2, Reminders: 3}) {
		t.Errorf("result = %+v", res)
	}
	if len(jobs.order) != 2 || jobs.order[0] != "expire" || jobs.order[1] != "remind" {
		t.Errorf("order = %v", jobs.order)
	}
}

func TestRunOnceWithoutExpiry(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, time.Hour, quietLogger())

	res, err := s.RunOnce(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Expired != 0 || res.Reminders != 3 {
		t.Errorf("result = %+v", res)
	}
	if expired, _ := jobs.counts(); expired != 0 {
		t.Errorf("expiry ran %d times", expired)
	}
}

func TestRunOnceStopsOnExpiryError(t *testing.T) {
	jobs := &fakeJobs{err: errors.New("db down")}
	s := New(jobs, time.Hour, quietLogger())

	if _, err := s.RunOnce(context.Background(), true); err == nil {
		t.Fatal("expected error")
	}
	if _, reminders := jobs.counts(); reminders != 0 {
		t.Errorf("reminders ran after failed expiry")
	}
}

func TestStartSweepsUntilShutdown(t *testing.T) {
	jobs := &fakeJobs{}
	s := New(jobs, 10*time.Millisecond, quietLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, reminders := jobs.counts(); reminders >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() returned %v", err)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(&fakeJobs{}, time.Hour, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
