// Package app assembles the service graph shared by the binaries: store,
// delivery queue, mailer, event broker and invitation service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/internal/queue"
	memqueue "github.com/narvanalabs/inviteonly/internal/queue/memory"
	pgqueue "github.com/narvanalabs/inviteonly/internal/queue/postgres"
	"github.com/narvanalabs/inviteonly/internal/store"
	memstore "github.com/narvanalabs/inviteonly/internal/store/memory"
	pgstore "github.com/narvanalabs/inviteonly/internal/store/postgres"
	"github.com/narvanalabs/inviteonly/internal/sweeper"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

// eventHistory is how many past events the broker keeps for replay.
const eventHistory = 200

// App holds the wired dependencies.
type App struct {
	Config      *config.Config
	Logger      *logger.Logger
	Store       store.Store
	Queue       queue.Queue
	Mailer      notify.Sender
	Broker      *events.Broker
	Invitations *invitation.Service

	migrate func(ctx context.Context) error
}

// New connects to the configured store and builds the invitation service.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	switch cfg.StoreDriver {
	case "memory":
		a.Store = memstore.New()
		a.Queue = memqueue.New()
		a.migrate = func(context.Context) error { return nil }
	case "postgres":
		pg, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log.WithComponent("store").Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.Store = pg
		a.Queue = pgqueue.NewPostgresQueue(pg.DB(), log.WithComponent("queue").Logger)
		a.migrate = pg.Migrate
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	switch cfg.Mail.Driver {
	case "sendgrid":
		a.Mailer = notify.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromAddress, cfg.Mail.FromName, log.WithComponent("mail").Logger)
	default:
		a.Mailer = notify.NewLogMailer(log.WithComponent("mail").Logger)
	}

	var sender notify.Sender = a.Mailer
	if cfg.Mail.Async {
		sender = notify.NewQueueSender(a.Queue)
	}
	notifier := notify.NewNotifier(notify.NewRenderer(cfg.PublicURL), sender, a.Store.Actors(), log.WithComponent("notify").Logger)

	a.Broker = events.NewBroker(eventHistory, log.WithComponent("events").Logger)
	a.Invitations = invitation.NewService(a.Store, invitation.FromSettings(cfg.Invitations),
		invitation.WithPublisher(events.Multi(a.Broker, events.NewLogPublisher(log.WithComponent("events").Logger))),
		invitation.WithDispatcher(notifier),
		invitation.WithLogger(log.WithComponent("invitations").Logger),
	)

	return a, nil
}

// Migrate applies pending schema migrations. It is a no-op for the memory store.
func (a *App) Migrate(ctx context.Context) error {
	return a.migrate(ctx)
}

// Auth builds the admin token service.
func (a *App) Auth() *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:   []byte(a.Config.JWTSecret),
		TokenExpiry: a.Config.JWTExpiry,
	}, a.Logger.WithComponent("auth").Logger)
}

// Sweeper builds the periodic expiry and reminder runner.
func (a *App) Sweeper() *sweeper.Sweeper {
	return sweeper.New(a.Invitations, a.Config.Worker.SweepInterval, a.Logger.WithComponent("sweeper").Logger)
}

// Deliverer builds the worker that drains the delivery queue into the mailer.
func (a *App) Deliverer() *notify.Deliverer {
	return notify.NewDeliverer(&notify.DelivererConfig{
		Concurrency:  a.Config.Worker.DeliveryConcurrency,
		MaxAttempts:  a.Config.Mail.MaxAttempts,
		PollInterval: a.Config.Worker.DeliveryPollInterval,
		ErrorBackoff: 5 * time.Second,
	}, a.Queue, a.Mailer, a.Logger.WithComponent("deliverer").Logger)
}

// Close releases the store connection.
func (a *App) Close() error {
	return a.Store.Close()
}
