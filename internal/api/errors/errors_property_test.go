package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/models"
)

func TestPropertyStructuredErrorResponseFormat(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genErrorCode := gen.OneConstOf(
		CodeValidationError,
		CodeNotFound,
		CodeUnauthorized,
		CodeForbidden,
		CodeInternalError,
		CodeConflict,
		CodeGone,
	)
	genNonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0
	})
	genRequestID := gen.RegexMatch("[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}")

	properties.Property("error response carries code, message and request_id", prop.ForAll(
		func(code, message, requestID string) bool {
			rr := httptest.NewRecorder()
			WriteErrorWithRequestID(rr, New(code, message), requestID)

			var response map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				return false
			}
			return response["code"] == code &&
				response["message"] == message &&
				response["request_id"] == requestID &&
				rr.Code == New(code, message).HTTPStatusCode()
		},
		genErrorCode,
		genNonEmptyString,
		genRequestID,
	))

	properties.TestingRun(t)
}

func TestFromDomain(t *testing.T) {
	acceptedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	inv := &models.Invitation{ID: 1, AcceptedAt: &acceptedAt, ExpiresAt: &acceptedAt}

	tests := []struct {
		kind   error
		status int
		detail string
	}{
		{invitation.ErrInvalidEmail, http.StatusBadRequest, ""},
		{invitation.ErrInvalidInvitable, http.StatusBadRequest, ""},
		{invitation.ErrDuplicate, http.StatusConflict, ""},
		{invitation.ErrTokenNotFound, http.StatusNotFound, ""},
		{invitation.ErrNotFound, http.StatusNotFound, ""},
		{invitation.ErrAlreadyAccepted, http.StatusConflict, "accepted_at"},
		{invitation.ErrExpired, http.StatusGone, "expires_at"},
		{invitation.ErrInvalidState, http.StatusConflict, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			derr := &invitation.Error{Kind: tt.kind, Code: "X", Message: "msg", Invitation: inv}
			if tt.kind == invitation.ErrInvalidState {
				derr.Reason = invitation.ReasonCancelled
			}
			apiErr := FromDomain(fmt.Errorf("wrapped: %w", derr))
			if apiErr == nil {
				t.Fatal("FromDomain() = nil")
			}
			if apiErr.HTTPStatusCode() != tt.status {
				t.Errorf("status = %d, want %d", apiErr.HTTPStatusCode(), tt.status)
			}
			if apiErr.Details["error_code"] != "X" || apiErr.Message != "msg" {
				t.Errorf("unexpected error %+v", apiErr)
			}
			if tt.detail != "" {
				if _, ok := apiErr.Details[tt.detail]; !ok {
					t.Errorf("details missing %q: %v", tt.detail, apiErr.Details)
				}
			}
		})
	}

	if FromDomain(fmt.Errorf("db down")) != nil {
		t.Error("infrastructure errors must not map to domain errors")
	}
}

func TestValidationErrorsToAPIError(t *testing.T) {
	var v ValidationErrors
	if v.HasErrors() {
		t.Fatal("empty errors reported HasErrors")
	}
	v.Add("email", "email is required")
	v.Add("invitable.id", "id is required")

	apiErr := v.ToAPIError()
	if apiErr.Code != CodeValidationError || apiErr.Message != "email is required (and 1 more errors)" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}
