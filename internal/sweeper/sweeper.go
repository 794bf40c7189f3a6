// Package sweeper runs the invitation expiry and reminder sweeps on a schedule.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Jobs is the part of the invitation service the sweeper drives.
type Jobs interface {
	MarkExpiredInvitations(ctx context.Context) (int, error)
	SendReminders(ctx context.Context) (int, error)
}

// Result reports one sweep.
type Result struct {
	Expired   int
	Reminders int
}

// Sweeper periodically expires past-due invitations and sends reminders.
// Runs never overlap.
type Sweeper struct {
	jobs     Jobs
	interval time.Duration
	logger   *slog.Logger

	runMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new Sweeper.
func New(jobs Jobs, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()
	defer close(done)

	s.logger.Info("starting invitation sweeper", "interval", s.interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("invitation sweeper stopped by context")
			return ctx.Err()
		case <-stop:
			s.logger.Info("invitation sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop stops the sweeper loop.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopChan)
		s.running = false
	}
}

// Name returns the component name for shutdown logging.
func (s *Sweeper) Name() string {
	return "invitation-sweeper"
}

// Shutdown stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	s.Stop()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx, true); err != nil {
		s.logger.Error("invitation sweep failed", "error", err)
	}
}

// RunOnce sends due reminders and, when markExpired is set, persists expiry
// first. It waits for any sweep already in progress.
func (s *Sweeper) RunOnce(ctx context.Context, markExpired bool) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var res Result
	start := time.Now()

	if markExpired {
		n, err := s.jobs.MarkExpiredInvitations(ctx)
		if err != nil {
			return res, err
		}
		res.Expired = n
	}

	n, err := s.jobs.SendReminders(ctx)
	if err != nil {
		return res, err
	}
	res.Reminders = n

	s.logger.Info("invitation sweep completed",
		"expired", res.Expired,
		"reminders", res.Reminders,
		"duration", time.Since(start),
	)
	return res, nil
}
