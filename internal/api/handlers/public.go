package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/inviteonly/internal/api/middleware"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/pkg/config"
)

// Query parameters added to every redirect.
const (
	StatusParam  = "invitation_status"
	MessageParam = "invitation_message"
)

// Redirect statuses.
const (
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
	StatusExpired  = "expired"
	StatusSuccess  = "success"
	StatusError    = "error"
)

// User-facing messages.
const (
	MessageInvalidLink     = "Invalid invitation link."
	MessageExpired         = "This invitation has expired."
	MessageAlreadyAccepted = "This invitation has already been accepted."
	MessageAccepted        = "You have successfully accepted the invitation."
	MessageDeclined        = "You have declined the invitation."
	MessageFailed          = "Something went wrong while processing the invitation."
)

// PublicHandler serves the links invitees follow from their email. Every
// outcome is a redirect to a configured page.
type PublicHandler struct {
	svc       *invitation.Service
	redirects config.RedirectsConfig
	logger    *slog.Logger
}

// NewPublicHandler creates a new public invitation handler.
func NewPublicHandler(svc *invitation.Service, redirects config.RedirectsConfig, logger *slog.Logger) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{svc: svc, redirects: redirects, logger: logger}
}

// Show handles GET /invitations/{token}. A valid invitation continues to its
// accept link; anything else lands on the page for its state. Expiry is
// checked first, so an accepted invitation past its expiry shows as expired.
func (h *PublicHandler) Show(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	inv, err := h.svc.Find(r.Context(), tok)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	switch {
	case inv.IsExpired():
		h.redirect(w, r, h.redirects.Expired, StatusExpired, MessageExpired)
	case inv.IsAccepted():
		h.redirect(w, r, h.redirects.Home, StatusSuccess, MessageAlreadyAccepted)
	case inv.IsCancelled():
		h.redirect(w, r, h.redirects.Home, StatusError, "This invitation has been cancelled.")
	case inv.IsDeclined():
		h.redirect(w, r, h.redirects.Home, StatusError, "This invitation has been declined.")
	default:
		http.Redirect(w, r, "/invitations/"+url.PathEscape(tok)+"/accept", http.StatusSeeOther)
	}
}

// Accept handles GET and POST /invitations/{token}/accept. A valid bearer
// token makes the caller the accepting actor.
func (h *PublicHandler) Accept(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.Accept(r.Context(), chi.URLParam(r, "token"), middleware.GetActor(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, h.redirects.Accepted, StatusAccepted, MessageAccepted)
}

// Decline handles GET and POST /invitations/{token}/decline.
func (h *PublicHandler) Decline(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.Decline(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirect(w, r, h.redirects.Declined, StatusDeclined, MessageDeclined)
}

func (h *PublicHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var derr *invitation.Error
	switch {
	case errors.Is(err, invitation.ErrTokenNotFound):
		h.redirect(w, r, h.redirects.Home, StatusError, MessageInvalidLink)
	case errors.Is(err, invitation.ErrExpired):
		h.redirect(w, r, h.redirects.Expired, StatusExpired, MessageExpired)
	case errors.Is(err, invitation.ErrAlreadyAccepted):
		h.redirect(w, r, h.redirects.Home, StatusSuccess, MessageAlreadyAccepted)
	case errors.As(err, &derr):
		h.redirect(w, r, h.redirects.Home, StatusError, derr.Message)
	default:
		h.logger.Error("invitation link failed", "path", r.URL.Path, "error", err)
		h.redirect(w, r, h.redirects.Home, StatusError, MessageFailed)
	}
}

func (h *PublicHandler) redirect(w http.ResponseWriter, r *http.Request, target, status, message string) {
	http.Redirect(w, r, withStatus(target, status, message), http.StatusSeeOther)
}

// withStatus appends the status parameters to target, keeping any query it
// already has.
func withStatus(target, status, message string) string {
	if target == "" {
		target = "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set(StatusParam, status)
	q.Set(MessageParam, message)
	u.RawQuery = q.Encode()
	return u.String()
}
