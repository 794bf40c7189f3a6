package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/narvanalabs/inviteonly/internal/api/errors"
	"github.com/narvanalabs/inviteonly/internal/api/middleware"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/store"
)

// maxBulkEmails caps a single bulk request.
const maxBulkEmails = 500

// InvitationsHandler handles the admin invitation endpoints.
type InvitationsHandler struct {
	svc    *invitation.Service
	logger *slog.Logger
}

// NewInvitationsHandler creates a new invitations handler.
func NewInvitationsHandler(svc *invitation.Service, logger *slog.Logger) *InvitationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationsHandler{
		svc:    svc,
		logger: logger,
	}
}

// InvitableRequest is the optional scope of a request.
type InvitableRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (i *InvitableRequest) toModel() *models.Invitable {
	if i == nil {
		return nil
	}
	return &models.Invitable{Type: i.Type, ID: i.ID}
}

// CreateInvitationRequest represents the request body for creating an invitation.
type CreateInvitationRequest struct {
	Email     string            `json:"email"`
	Invitable *InvitableRequest `json:"invitable,omitempty"`
	Role      string            `json:"role,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// BulkInvitationRequest represents the request body for a bulk invitation.
type BulkInvitationRequest struct {
	Emails          []string          `json:"emails"`
	Invitable       *InvitableRequest `json:"invitable,omitempty"`
	Role            string            `json:"role,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	AllowDuplicates bool              `json:"allow_duplicates,omitempty"`
}

// BulkInvitationResponse summarizes a bulk invitation.
type BulkInvitationResponse struct {
	Total      int                      `json:"total"`
	Count      int                      `json:"count"`
	Successful []*models.Invitation     `json:"successful"`
	Failed     []invitation.BulkFailure `json:"failed"`
}

// Create handles POST /v1/invitations.
func (h *InvitationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var verrs apierrors.ValidationErrors
	if req.Email == "" {
		verrs.Add("email", "email is required")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		verrs.Add("expires_at", "expires_at must be in the future")
	}
	if verrs.HasErrors() {
		WriteError(w, r, verrs.ToAPIError())
		return
	}

	inv, err := h.svc.Invite(r.Context(), req.Email, req.Invitable.toModel(), invitation.InviteOptions{
		Role:      req.Role,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
		InvitedBy: middleware.GetActor(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create invitation", err)
		return
	}

	WriteJSON(w, http.StatusCreated, inv)
}

// CreateBulk handles POST /v1/invitations/bulk.
func (h *InvitationsHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Emails) == 0 {
		WriteBadRequest(w, r, "emails is required")
		return
	}
	if len(req.Emails) > maxBulkEmails {
		WriteBadRequest(w, r, "at most "+strconv.Itoa(maxBulkEmails)+" emails per request")
		return
	}

	result, err := h.svc.InviteMany(r.Context(), req.Emails, req.Invitable.toModel(), invitation.BulkOptions{
		InviteOptions: invitation.InviteOptions{
			Role:      req.Role,
			Metadata:  req.Metadata,
			ExpiresAt: req.ExpiresAt,
			InvitedBy: middleware.GetActor(r.Context()),
		},
		AllowDuplicates: req.AllowDuplicates,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create invitations", err)
		return
	}

	WriteJSON(w, http.StatusOK, BulkInvitationResponse{
		Total:      result.Total(),
		Count:      result.Count(),
		Successful: result.Successful,
		Failed:     result.Failed,
	})
}

// List handles GET /v1/invitations. Supported query parameters: status,
// valid, email, invitable_type with invitable_id, global, limit, offset.
func (h *InvitationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invitable, ok := invitableParam(w, r)
	if !ok {
		return
	}

	filter := store.ListFilter{
		Invitable:  invitable,
		GlobalOnly: q.Get("global") == "true",
		Email:      q.Get("email"),
	}
	if s := q.Get("status"); s != "" {
		status, err := models.ParseInvitationStatus(s)
		if err != nil {
			WriteBadRequest(w, r, err.Error())
			return
		}
		filter.Status = status
	}
	if q.Get("valid") == "true" {
		now := time.Now().UTC()
		filter.ValidAt = &now
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteBadRequest(w, r, "invalid "+name)
				return
			}
			*dst = n
		}
	}

	invs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "list invitations", err)
		return
	}
	if invs == nil {
		invs = []*models.Invitation{}
	}

	WriteJSON(w, http.StatusOK, invs)
}

// Stats handles GET /v1/invitations/stats.
func (h *InvitationsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	invitable, ok := invitableParam(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(r.Context(), invitable)
	if err != nil {
		writeServiceError(w, r, h.logger, "count invitations", err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// Lookup handles GET /v1/invitations/lookup?email=. Without invitable
// parameters it searches invitations that have no invitable.
func (h *InvitationsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		WriteBadRequest(w, r, "email is required")
		return
	}
	invitable, ok := invitableParam(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.FindByEmail(r.Context(), email, invitable)
	if err != nil {
		writeServiceError(w, r, h.logger, "find invitation", err)
		return
	}
	if inv == nil {
		WriteError(w, r, apierrors.NewNotFoundError("Invitation not found."))
		return
	}

	WriteJSON(w, http.StatusOK, inv)
}

// Get handles GET /v1/invitations/{invitationID}.
func (h *InvitationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := invitationID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get invitation", err)
		return
	}

	WriteJSON(w, http.StatusOK, inv)
}

// Cancel handles POST /v1/invitations/{invitationID}/cancel[?notify=true].
func (h *InvitationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := invitationID(w, r)
	if !ok {
		return
	}
	notify, _ := strconv.ParseBool(r.URL.Query().Get("notify"))

	inv, err := h.svc.Cancel(r.Context(), id, notify)
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel invitation", err)
		return
	}

	WriteJSON(w, http.StatusOK, inv)
}

// Resend handles POST /v1/invitations/{invitationID}/resend.
func (h *InvitationsHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id, ok := invitationID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Resend(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "resend invitation", err)
		return
	}

	WriteJSON(w, http.StatusOK, inv)
}
