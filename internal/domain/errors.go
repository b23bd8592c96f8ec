// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidFormat is returned when data is not in the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrUnknownKind is returned when a job kind has no registered payload codec.
	ErrUnknownKind = errors.New("unknown job kind")

	// ErrInvalidJobStatus is returned when a job status is not valid.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidTransition is returned when a status change is not an edge
	// of the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrTerminalState is returned when a mutation targets a job that has
	// already reached a terminal status.
	ErrTerminalState = errors.New("job is in a terminal state")

	// ErrImmutableField is returned when a mutation changes a field that is
	// fixed at creation time.
	ErrImmutableField = errors.New("immutable job field changed")

	// ErrInvariant is returned when a job record violates a structural invariant.
	ErrInvariant = errors.New("job invariant violated")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes a single invalid field of a submission.
// It wraps ErrValidation unless a more specific cause is given.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError for field.
// A nil err defaults to ErrValidation.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation.Error(), e.Field, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports ErrValidation for every ValidationError so callers can match
// on the sentinel regardless of the specific cause.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
