package domain

import "errors"

// Sentinel errors for the session core. These provide consistent, checkable
// errors for the failure classes a client event can run into.
var (
	ErrValidation  = errors.New("validation failed")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrNotFound    = errors.New("requested resource not found")
	ErrNotJoined   = errors.New("connection has not joined a room")
	ErrInternal    = errors.New("internal error")
)

// Error carries a human-readable message for the client alongside one of the
// sentinel errors above, so callers can still use errors.Is.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// NewValidationError returns a validation error with the given client message.
func NewValidationError(msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg}
}

// NewRateLimitError returns the error sent to senders that exceed their window.
func NewRateLimitError() *Error {
	return &Error{Kind: ErrRateLimited, Message: "You are sending messages too quickly. Please slow down."}
}

// NewInternalError hides the underlying fault behind a generic message.
func NewInternalError() *Error {
	return &Error{Kind: ErrInternal, Message: "Something went wrong. Please try again."}
}

// ClientMessage returns the text that is safe to show to a client for err.
func ClientMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return NewInternalError().Message
}
