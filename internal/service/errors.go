package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/sketchpad-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in JobServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNotOwned indicates a job is owned by a different user than the one making the request.
	// API layer maps this to 404 so job IDs of other users are not confirmed.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrJobNotFound indicates that the job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotReady is returned by GetResult while a job has not completed.
	// API layer maps this to HTTP 409 Conflict.
	ErrNotReady = errors.New("result not ready")

	// ErrBusy is returned when a job kept changing under a cancel or retry
	// request and the write was abandoned.
	ErrBusy = errors.New("job is being updated concurrently")
)

// JobServiceError wraps errors from the job service with context.
type JobServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "cancel")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for JobServiceError.
func (e *JobServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("job service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *JobServiceError) Unwrap() error {
	return e.Err
}

// NewJobServiceError creates a new JobServiceError.
// It returns known sentinel errors directly without wrapping.
func NewJobServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotOwned):
		return ErrNotOwned
	case errors.Is(err, ErrNotReady):
		return ErrNotReady
	case errors.Is(err, ErrBusy):
		return ErrBusy
	case errors.Is(err, ErrJobNotFound), errors.Is(err, store.ErrJobNotFound):
		return ErrJobNotFound
	}

	return &JobServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
