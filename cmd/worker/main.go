// Package main provides the entry point for the background worker: the expiry
// and reminder sweeper plus the notification delivery loop.
package main

import (
	"context"
	"os"

	"github.com/narvanalabs/inviteonly/internal/app"
	"github.com/narvanalabs/inviteonly/internal/shutdown"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	if cfg.StoreDriver != "postgres" {
		log.Error("the worker needs a shared store", "store_driver", cfg.StoreDriver)
		os.Exit(1)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", a))

	deliverer := a.Deliverer()
	deliverer.Start(ctx)
	coordinator.Register(deliverer)

	sw := a.Sweeper()
	go func() {
		if err := sw.Start(ctx); err != nil {
			log.Error("sweeper stopped", "error", err)
		}
	}()
	coordinator.Register(sw)

	log.Info("worker started",
		"sweep_interval", cfg.Worker.SweepInterval,
		"delivery_concurrency", cfg.Worker.DeliveryConcurrency,
		"async_mail", cfg.Mail.Async,
	)

	coordinator.WaitForSignal(ctx)
	log.Info("worker shutdown complete")
	os.Exit(coordinator.ExitCode())
}
