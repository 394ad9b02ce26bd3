package application

import (
	"errors"

	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/recurrence"
	"github.com/example/class-booking/internal/roles"
)

var (
	// ErrUnauthorized is returned when no authenticated principal is present.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute such as an email is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when a disabled account tries to sign in.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when a session token has been revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrInvalidCode is returned when a verification or reset code does not match.
	ErrInvalidCode = errors.New("application: invalid code")
	// ErrCodeExpired is returned when a verification or reset code is past its expiry.
	ErrCodeExpired = errors.New("application: code expired")
)

// Domain errors surfaced unchanged from the decision packages.
var (
	ErrFull           = capacity.ErrFull
	ErrAlreadyBooked  = capacity.ErrAlreadyBooked
	ErrForbidden      = roles.ErrForbidden
	ErrSelfMutation   = roles.ErrSelfMutation
	ErrPastDay        = recurrence.ErrPastDay
	ErrEndBeforeStart = recurrence.ErrInvalidDuration
	ErrNoOccurrences  = recurrence.ErrNoOccurrences
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// NewValidationError builds a ValidationError from field messages.
func NewValidationError(fields map[string]string) *ValidationError {
	v := &ValidationError{}
	for field, msg := range fields {
		v.add(field, msg)
	}
	return v
}
