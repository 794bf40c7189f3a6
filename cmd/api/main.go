// Package main provides the entry point for the API server.
package main

import (
	"context"
	"os"

	"github.com/narvanalabs/inviteonly/internal/api"
	"github.com/narvanalabs/inviteonly/internal/app"
	"github.com/narvanalabs/inviteonly/internal/shutdown"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)

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

	// The memory store lives in this process, so nothing else can run the
	// background jobs against it.
	if cfg.StoreDriver == "memory" {
		sw := a.Sweeper()
		go sw.Start(ctx)
		coordinator.Register(sw)

		if cfg.Mail.Async {
			deliverer := a.Deliverer()
			deliverer.Start(ctx)
			coordinator.Register(deliverer)
		}
	}

	server := api.NewServer(cfg, a.Invitations, a.Broker, a.Auth(), a.Store, log.WithComponent("api").Logger)
	coordinator.Register(server)

	startErr := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil {
			log.Error("server error", "error", err)
			cancel()
		}
		startErr <- err
	}()

	coordinator.WaitForSignal(ctx)
	log.Info("server stopped")

	code := coordinator.ExitCode()
	select {
	case err := <-startErr:
		if err != nil {
			code = 1
		}
	default:
	}
	os.Exit(code)
}
