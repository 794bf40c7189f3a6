// Package api provides the HTTP API server for the invitation service.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/inviteonly/internal/api/handlers"
	"github.com/narvanalabs/inviteonly/internal/api/health"
	"github.com/narvanalabs/inviteonly/internal/api/middleware"
	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/store"
	"github.com/narvanalabs/inviteonly/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// requestTimeout bounds every request except event streams.
const requestTimeout = 60 * time.Second

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	invitations   *invitation.Service
	broker        *events.Broker
	auth          *auth.Service
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies. The store is
// only used for health checks; every other operation goes through svc.
func NewServer(cfg *config.Config, svc *invitation.Service, broker *events.Broker, authSvc *auth.Service, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		invitations: svc,
		broker:      broker,
		auth:        authSvc,
		config:      cfg,
		logger:      logger,
	}

	s.healthChecker = health.NewChecker(Version)
	s.healthChecker.AddComponent("store", st, true)

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
	invitationsHandler := handlers.NewInvitationsHandler(s.invitations, s.logger)
	adminHandler := handlers.NewAdminHandler(s.invitations, s.logger)
	publicHandler := handlers.NewPublicHandler(s.invitations, s.config.Invitations.Redirects, s.logger)

	// Event streams are long lived and sit outside the request timeout.
	if s.broker != nil {
		eventsHandler := handlers.NewEventsHandler(s.broker, s.logger)
		r.With(authMiddleware.Authenticate, middleware.RequireAdmin).
			Get("/v1/invitations/events", eventsHandler.Stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))

		// Health check endpoint (no auth required)
		r.Get("/health", s.healthChecker.Handler())

		// Links from invitation emails. A signed-in user is recorded as the
		// accepting actor; anonymous visitors are allowed.
		r.Route("/invitations/{token}", func(r chi.Router) {
			r.Use(authMiddleware.Identify)
			r.Get("/", publicHandler.Show)
			r.Get("/accept", publicHandler.Accept)
			r.Post("/accept", publicHandler.Accept)
			r.Get("/decline", publicHandler.Decline)
			r.Post("/decline", publicHandler.Decline)
		})

		r.Route("/v1", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(middleware.RequireAdmin)

			r.Route("/invitations", func(r chi.Router) {
				r.Post("/", invitationsHandler.Create)
				r.Get("/", invitationsHandler.List)
				r.Post("/bulk", invitationsHandler.CreateBulk)
				r.Get("/stats", invitationsHandler.Stats)
				r.Get("/lookup", invitationsHandler.Lookup)
				r.Route("/{invitationID}", func(r chi.Router) {
					r.Get("/", invitationsHandler.Get)
					r.Post("/cancel", invitationsHandler.Cancel)
					r.Post("/resend", invitationsHandler.Resend)
				})
			})

			r.Delete("/actors/{actorID}", adminHandler.ForgetActor)

			r.Route("/sweeps", func(r chi.Router) {
				r.Post("/expire", adminHandler.Expire)
				r.Post("/reminders", adminHandler.Remind)
			})
		})
	})

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Name identifies the server to the shutdown coordinator.
func (s *Server) Name() string {
	return "api-server"
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
