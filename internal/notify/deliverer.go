package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/queue"
)

// QueueSender implements Sender by enqueuing messages for the Deliverer.
type QueueSender struct {
	queue queue.Queue
}

// NewQueueSender creates a sender that defers delivery to the queue.
func NewQueueSender(q queue.Queue) *QueueSender {
	return &QueueSender{queue: q}
}

// Send enqueues the message.
func (s *QueueSender) Send(ctx context.Context, d *models.Delivery) error {
	return s.queue.Enqueue(ctx, d)
}

// maxRetryDelay caps the wait between delivery attempts.
const maxRetryDelay = 10 * time.Minute

// DelivererConfig holds configuration for the delivery worker. ErrorBackoff
// is the wait after a dequeue error and before the first send retry.
type DelivererConfig struct {
	Concurrency  int
	MaxAttempts  int
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// DefaultDelivererConfig returns a DelivererConfig with sensible defaults.
func DefaultDelivererConfig() *DelivererConfig {
	return &DelivererConfig{
		Concurrency:  2,
		MaxAttempts:  5,
		PollInterval: time.Second,
		ErrorBackoff: 5 * time.Second,
	}
}

// Deliverer drains the delivery queue into a Sender.
type Deliverer struct {
	queue  queue.Queue
	sender Sender
	cfg    *DelivererConfig
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDeliverer creates a delivery worker.
func NewDeliverer(cfg *DelivererConfig, q queue.Queue, sender Sender, logger *slog.Logger) *Deliverer {
	if cfg == nil {
		cfg = DefaultDelivererConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		queue:  q,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start spawns the configured number of delivery loops.
func (d *Deliverer) Start(ctx context.Context) {
	d.logger.Info("starting notification deliverer", "concurrency", d.cfg.Concurrency)
	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		go d.loop(ctx, i)
	}
}

// Stop signals the loops to exit and waits for them.
func (d *Deliverer) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping notification deliverer")
		close(d.stopCh)
	})
	d.wg.Wait()
}

// Name implements shutdown.Component.
func (d *Deliverer) Name() string {
	return "notification-deliverer"
}

// Shutdown implements shutdown.Component.
func (d *Deliverer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Deliverer) loop(ctx context.Context, workerID int) {
	defer d.wg.Done()

	logger := d.logger.With("worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		processed, err := d.ProcessOne(ctx)
		if err != nil {
			logger.Error("failed to dequeue delivery", "error", err)
			d.wait(ctx, d.cfg.ErrorBackoff)
			continue
		}
		if !processed {
			d.wait(ctx, d.cfg.PollInterval)
		}
	}
}

func (d *Deliverer) wait(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.stopCh:
	case <-timer.C:
	}
}

// ProcessOne delivers the next queued message. It reports false when no
// delivery was due. Send failures are retried with a growing delay until
// MaxAttempts and then dropped.
func (d *Deliverer) ProcessOne(ctx context.Context) (bool, error) {
	delivery, err := d.queue.Dequeue(ctx)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logger := d.logger.With("delivery_id", delivery.ID, "invitation_id", delivery.InvitationID)

	if sendErr := d.sender.Send(ctx, delivery); sendErr != nil {
		attempts := delivery.Attempts + 1
		if attempts >= d.cfg.MaxAttempts {
			logger.Error("dropping undeliverable notification", "attempts", attempts, "error", sendErr)
			if err := d.queue.Ack(ctx, delivery.ID); err != nil {
				logger.Error("failed to ack delivery", "error", err)
			}
			return true, nil
		}
		delay := d.retryDelay(attempts)
		logger.Warn("notification delivery failed", "attempts", attempts, "retry_in", delay, "error", sendErr)
		if err := d.queue.Nack(ctx, delivery.ID, delay); err != nil {
			logger.Error("failed to nack delivery", "error", err)
		}
		return true, nil
	}

	if err := d.queue.Ack(ctx, delivery.ID); err != nil {
		logger.Error("failed to ack delivery", "error", err)
	}
	return true, nil
}

// retryDelay doubles ErrorBackoff with every failed attempt, up to maxRetryDelay.
func (d *Deliverer) retryDelay(attempts int) time.Duration {
	delay := d.cfg.ErrorBackoff
	for i := 1; i < attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
