package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/inviteonly/internal/api/errors"
	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

// Context keys for actor information.
type contextKey string

const (
	// ClaimsKey is the context key for the validated token claims.
	ClaimsKey contextKey = "claims"
)

// GetClaims extracts the validated claims from the request context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return v
	}
	return nil
}

// GetActor returns the authenticated actor, or nil for anonymous requests.
func GetActor(ctx context.Context) *models.Actor {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Actor()
	}
	return nil
}

// AuthMiddleware handles bearer token authentication.
type AuthMiddleware struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Authenticate rejects requests without a valid bearer token. Browsers
// opening the event stream may pass the token as access_token instead.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			writeUnauthorized(w, r, "Missing authentication")
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			m.logger.Debug("JWT validation failed", "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				writeUnauthorized(w, r, "Token has expired")
				return
			}
			writeUnauthorized(w, r, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// Identify attaches the actor when a valid bearer token is present and lets
// anonymous requests through.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token != "" {
			if claims, err := m.authService.ValidateToken(token); err == nil {
				r = r.WithContext(withClaims(r.Context(), claims))
			} else {
				m.logger.Debug("ignoring invalid bearer token", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects authenticated requests whose token lacks the admin claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			writeUnauthorized(w, r, "Authentication required")
			return
		}
		if !claims.Admin {
			apierrors.WriteErrorWithRequestID(w,
				apierrors.NewForbiddenError("Admin access required"),
				middleware.GetReqID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.actorID = claims.Subject
	}
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return logger.ContextWithActorID(ctx, claims.Subject)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w,
		apierrors.NewUnauthorizedError(message),
		middleware.GetReqID(r.Context()))
}
