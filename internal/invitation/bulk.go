package invitation

import (
	"context"
	"errors"
	"fmt"

	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/validation"
)

// Reasons recorded on bulk failures.
const (
	FailureInvalidFormat    = "invalid format"
	FailureDuplicate        = "duplicate"
	FailureUnknownInvitable = "unknown invitable"
)

// BulkOptions configures InviteMany.
type BulkOptions struct {
	InviteOptions
	// AllowDuplicates disables the pending-duplicate pre-check. Duplicates
	// are then reported by the store instead.
	AllowDuplicates bool
}

// BulkFailure is one email that could not be invited.
type BulkFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// BulkResult holds the outcome of InviteMany. Both lists keep input order.
type BulkResult struct {
	Successful []*models.Invitation `json:"successful"`
	Failed     []BulkFailure        `json:"failed"`
}

// Count returns the number of invitations created.
func (r *BulkResult) Count() int {
	return len(r.Successful)
}

// Total returns the number of emails processed.
func (r *BulkResult) Total() int {
	return len(r.Successful) + len(r.Failed)
}

// AllSuccessful reports whether every email was invited.
func (r *BulkResult) AllSuccessful() bool {
	return len(r.Failed) == 0
}

// HasFailures reports whether any email failed.
func (r *BulkResult) HasFailures() bool {
	return len(r.Failed) > 0
}

// HasSuccesses reports whether any invitation was created.
func (r *BulkResult) HasSuccesses() bool {
	return len(r.Successful) > 0
}

// SuccessfulEmails returns the invited addresses in input order.
func (r *BulkResult) SuccessfulEmails() []string {
	emails := make([]string, 0, len(r.Successful))
	for _, inv := range r.Successful {
		emails = append(emails, inv.Email)
	}
	return emails
}

// FailedEmails returns the failed addresses in input order.
func (r *BulkResult) FailedEmails() []string {
	emails := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		emails = append(emails, f.Email)
	}
	return emails
}

func (r *BulkResult) fail(email, reason string) {
	r.Failed = append(r.Failed, BulkFailure{Email: email, Reason: reason})
}

// InviteMany invites each email in order. Row-level problems become failure
// entries; only infrastructure errors are returned.
func (s *Service) InviteMany(ctx context.Context, emails []string, invitable *models.Invitable, opts BulkOptions) (*BulkResult, error) {
	result := &BulkResult{
		Successful: make([]*models.Invitation, 0, len(emails)),
		Failed:     []BulkFailure{},
	}

	if !s.cfg.allowsInvitable(invitable) {
		for _, email := range emails {
			result.fail(email, FailureUnknownInvitable)
		}
		return result, nil
	}

	pending := map[string]bool{}
	if !opts.AllowDuplicates && len(emails) > 0 {
		var err error
		pending, err = s.store.Invitations().PendingEmails(ctx, emails, invitable)
		if err != nil {
			return nil, fmt.Errorf("checking pending invitations: %w", err)
		}
	}

	for _, email := range emails {
		if !validation.IsValidEmail(email) {
			result.fail(email, FailureInvalidFormat)
			continue
		}
		if pending[email] {
			result.fail(email, FailureDuplicate)
			continue
		}

		inv, err := s.Invite(ctx, email, invitable, opts.InviteOptions)
		switch {
		case err == nil:
			result.Successful = append(result.Successful, inv)
		case errors.Is(err, ErrDuplicate):
			result.fail(email, FailureDuplicate)
		case errors.Is(err, ErrInvalidEmail):
			result.fail(email, FailureInvalidFormat)
		case errors.Is(err, ErrInvalidInvitable):
			result.fail(email, FailureUnknownInvitable)
		default:
			return nil, err
		}
	}

	s.logger.Info("bulk invitation finished",
		"total", result.Total(),
		"successful", result.Count(),
		"failed", len(result.Failed),
	)
	return result, nil
}
