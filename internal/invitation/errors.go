package invitation

import (
	"errors"
	"fmt"
	"time"

	"github.com/narvanalabs/inviteonly/internal/models"
)

// Error kinds. Match them with errors.Is; use errors.As on *Error for context.
var (
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidInvitable = errors.New("invalid invitable")
	ErrDuplicate        = errors.New("duplicate invitation")
	ErrTokenNotFound    = errors.New("invitation token not found")
	ErrNotFound         = errors.New("invitation not found")
	ErrAlreadyAccepted  = errors.New("invitation already accepted")
	ErrExpired          = errors.New("invitation expired")
	ErrInvalidState     = errors.New("invalid invitation state")
)

// Error codes carried by *Error.
const (
	CodeInvalidEmail     = "INVITATION_INVALID_EMAIL"
	CodeInvalidInvitable = "INVITATION_INVALID_INVITABLE"
	CodeDuplicate        = "INVITATION_DUPLICATE"
	CodeTokenNotFound    = "INVITATION_TOKEN_NOT_FOUND"
	CodeNotFound         = "INVITATION_NOT_FOUND"
	CodeAlreadyAccepted  = "INVITATION_ALREADY_ACCEPTED"
	CodeExpired          = "INVITATION_EXPIRED"
	CodeCancelled        = "INVITATION_CANCELLED"
	CodeDeclined         = "INVITATION_DECLINED"
	CodeNotDeclinable    = "INVITATION_NOT_DECLINABLE"
	CodeNotCancellable   = "INVITATION_NOT_CANCELLABLE"
	CodeNotResendable    = "INVITATION_NOT_RESENDABLE"
	CodeConcurrentUpdate = "INVITATION_CONCURRENT_UPDATE"
)

// Reasons carried by InvalidState errors.
const (
	ReasonCancelled        = "cancelled"
	ReasonDeclined         = "declined"
	ReasonNotDeclinable    = "not declinable"
	ReasonNotCancellable   = "not cancellable"
	ReasonNotResendable    = "not resendable"
	ReasonConcurrentUpdate = "concurrent update"
)

// Error is a domain rule violation.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Code is a machine-readable identifier.
	Code string
	// Message is safe to show to end users.
	Message string
	// Resolution suggests what the caller can do next.
	Resolution string
	// Reason parameterizes ErrInvalidState.
	Reason string
	// Invitation is the offending invitation, when one was found.
	Invitation *models.Invitation
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// AcceptedAt returns when the invitation was accepted, for ErrAlreadyAccepted.
func (e *Error) AcceptedAt() *time.Time {
	if e.Invitation == nil {
		return nil
	}
	return e.Invitation.AcceptedAt
}

// AcceptedBy returns who accepted the invitation, for ErrAlreadyAccepted.
func (e *Error) AcceptedBy() *string {
	if e.Invitation == nil {
		return nil
	}
	return e.Invitation.AcceptedBy
}

// ExpiresAt returns the expiry date, for ErrExpired.
func (e *Error) ExpiresAt() *time.Time {
	if e.Invitation == nil {
		return nil
	}
	return e.Invitation.ExpiresAt
}

func invalidEmailError(email string, cause error) *Error {
	return &Error{
		Kind:       ErrInvalidEmail,
		Code:       CodeInvalidEmail,
		Message:    fmt.Sprintf("%q is not a valid email address: %v", email, cause),
		Resolution: "Provide a well-formed email address.",
	}
}

func invalidInvitableError(inv *models.Invitable) *Error {
	return &Error{
		Kind:       ErrInvalidInvitable,
		Code:       CodeInvalidInvitable,
		Message:    fmt.Sprintf("Unknown invitable %q.", inv.String()),
		Resolution: "Use one of the configured invitable types with a non-empty id.",
	}
}

func duplicateError(email string) *Error {
	return &Error{
		Kind:       ErrDuplicate,
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("An invitation for %s already exists.", email),
		Resolution: "Resend or cancel the existing invitation instead.",
	}
}

func tokenNotFoundError() *Error {
	return &Error{
		Kind:       ErrTokenNotFound,
		Code:       CodeTokenNotFound,
		Message:    "Invalid invitation token.",
		Resolution: "Check the invitation link or ask for a new invitation.",
	}
}

func notFoundError(id int64) *Error {
	return &Error{
		Kind:       ErrNotFound,
		Code:       CodeNotFound,
		Message:    "Invitation not found.",
		Resolution: fmt.Sprintf("No invitation has id %d.", id),
	}
}

func alreadyAcceptedError(inv *models.Invitation) *Error {
	return &Error{
		Kind:       ErrAlreadyAccepted,
		Code:       CodeAlreadyAccepted,
		Message:    "This invitation has already been accepted.",
		Resolution: "No action is needed.",
		Invitation: inv,
	}
}

func expiredError(inv *models.Invitation) *Error {
	msg := "This invitation has expired."
	if inv.ExpiresAt != nil {
		msg = fmt.Sprintf("This invitation expired on %s.", inv.ExpiresAt.Format("January 2, 2006"))
	}
	return &Error{
		Kind:       ErrExpired,
		Code:       CodeExpired,
		Message:    msg,
		Resolution: "Ask the sender for a new invitation.",
		Invitation: inv,
	}
}

func invalidStateError(inv *models.Invitation, reason string) *Error {
	e := &Error{Kind: ErrInvalidState, Reason: reason, Invitation: inv}
	switch reason {
	case ReasonCancelled:
		e.Code = CodeCancelled
		e.Message = "This invitation has been cancelled."
		e.Resolution = "Ask the sender for a new invitation."
	case ReasonDeclined:
		e.Code = CodeDeclined
		e.Message = "This invitation has been declined."
		e.Resolution = "Ask the sender for a new invitation."
	case ReasonNotDeclinable:
		e.Code = CodeNotDeclinable
		e.Message = "This invitation cannot be declined."
		e.Resolution = "Only pending invitations can be declined."
	case ReasonNotCancellable:
		e.Code = CodeNotCancellable
		e.Message = "Only pending invitations can be cancelled."
		e.Resolution = "The invitation has already been answered or withdrawn."
	case ReasonNotResendable:
		e.Code = CodeNotResendable
		e.Message = "This invitation cannot be resent."
		e.Resolution = "Only pending invitations that have not expired can be resent."
	default:
		e.Code = CodeConcurrentUpdate
		e.Message = "The invitation was changed by another request."
		e.Resolution = "Reload the invitation and try again."
	}
	return e
}
