package usecase

import "errors"

// Error kinds. Every error returned by Service unwraps to exactly one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpired            = errors.New("expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUpstream           = errors.New("upstream failure")
)

// Error carries a client-safe message and, for policy failures, every
// violated rule.
type Error struct {
	Kind    error
	Message string
	Details []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// NewError builds a client-facing error of the given kind.
func NewError(kind error, message string, details ...string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func wrapError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func upstream(message string, cause error) *Error {
	return wrapError(ErrUpstream, message, cause)
}
