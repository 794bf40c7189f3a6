package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/inviteonly/internal/invitation"
)

// AdminHandler handles maintenance endpoints.
type AdminHandler struct {
	svc    *invitation.Service
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *invitation.Service, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{svc: svc, logger: logger}
}

// SweepResponse reports how many invitations a sweep touched.
type SweepResponse struct {
	Count int `json:"count"`
}

// Expire handles POST /v1/sweeps/expire.
func (h *AdminHandler) Expire(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkExpiredInvitations(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "mark expired invitations", err)
		return
	}
	WriteJSON(w, http.StatusOK, SweepResponse{Count: n})
}

// Remind handles POST /v1/sweeps/reminders.
func (h *AdminHandler) Remind(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SendReminders(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "send reminders", err)
		return
	}
	WriteJSON(w, http.StatusOK, SweepResponse{Count: n})
}

// ForgetActor handles DELETE /v1/actors/{actorID}.
func (h *AdminHandler) ForgetActor(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	if actorID == "" {
		WriteBadRequest(w, r, "actor id is required")
		return
	}
	if err := h.svc.ForgetActor(r.Context(), actorID); err != nil {
		writeServiceError(w, r, h.logger, "forget actor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
