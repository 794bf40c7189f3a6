package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/narvanalabs/inviteonly/internal/api/errors"
	"github.com/narvanalabs/inviteonly/internal/models"
)

// maxBodyBytes caps request bodies; bulk requests are the largest.
const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteError writes err with the request ID attached.
func WriteError(w http.ResponseWriter, r *http.Request, err *apierrors.APIError) {
	apierrors.WriteErrorWithRequestID(w, err, middleware.GetReqID(r.Context()))
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, apierrors.NewValidationError(message))
}

// writeServiceError maps a service error to a response. Domain errors keep
// their message; anything else is logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if apiErr := apierrors.FromDomain(err); apiErr != nil {
		WriteError(w, r, apiErr)
		return
	}
	logger.Error("request failed",
		"operation", op,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
	)
	WriteError(w, r, apierrors.NewInternalError("failed to "+op))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// invitationID parses the {invitationID} URL parameter.
func invitationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "invitationID"), 10, 64)
	if err != nil || id <= 0 {
		WriteBadRequest(w, r, "invalid invitation id")
		return 0, false
	}
	return id, true
}

// invitableParam reads invitable_type and invitable_id from the query string.
// Both empty means no scope.
func invitableParam(w http.ResponseWriter, r *http.Request) (*models.Invitable, bool) {
	q := r.URL.Query()
	typ, id := q.Get("invitable_type"), q.Get("invitable_id")
	if typ == "" && id == "" {
		return nil, true
	}
	if typ == "" || id == "" {
		WriteBadRequest(w, r, "invitable_type and invitable_id must be given together")
		return nil, false
	}
	return &models.Invitable{Type: typ, ID: id}, true
}
