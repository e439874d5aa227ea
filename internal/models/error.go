package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound        = errors.New("resource not found")
	ErrConflict        = errors.New("resource already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrInternalServer  = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked    = errors.New("account is locked")
	ErrEmailNotVerified = errors.New("email address not verified")
)

// Error pairs a sentinel kind with a client-facing message.
// errors.Is matches against the kind.
type Error struct {
	Kind    error
	Message string
	Details []string
}

func NewError(kind error, message string, details ...string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func BadRequest(message string, details ...string) *Error {
	return NewError(ErrBadRequest, message, details...)
}

func Unauthorized(message string) *Error {
	return NewError(ErrUnauthorized, message)
}

func NotFound(message string) *Error {
	return NewError(ErrNotFound, message)
}

func Conflict(message string) *Error {
	return NewError(ErrConflict, message)
}

func TooManyRequests(message string) *Error {
	return NewError(ErrTooManyRequests, message)
}
