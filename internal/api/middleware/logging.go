// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/narvanalabs/inviteonly/pkg/logger"
)

// requestInfo collects values set by inner middleware that the request
// logger reports once the handler returns.
type requestInfo struct {
	actorID string
}

const requestInfoKey contextKey = "request_info"

// RequestLogger returns a middleware that logs HTTP requests. Public
// invitation paths carry the token, so the route pattern is logged instead of
// the raw path.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			info := &requestInfo{}
			ctx := logger.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			ctx = context.WithValue(ctx, requestInfoKey, info)
			r = r.WithContext(ctx)

			defer func() {
				attrs := []any{
					"method", r.Method,
					"path", routePattern(r),
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"request_id", middleware.GetReqID(r.Context()),
					"remote_addr", r.RemoteAddr,
				}
				if info.actorID != "" {
					attrs = append(attrs, "actor_id", info.actorID)
				}
				log.Info("request completed", attrs...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern returns the matched chi route, falling back to the raw path
// for unmatched requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
