package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when canvas generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate canvas content")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// Code classifies a generation failure. Whether a code is retried is decided
// by the retry policy, not here.
type Code string

// Failure codes
const (
	CodeTimeout         Code = "timeout"
	CodeUnavailable     Code = "unavailable"
	CodeRateLimited     Code = "rate_limited"
	CodeNetwork         Code = "network"
	CodeUnauthenticated Code = "unauthenticated"
	CodeQuotaExhausted  Code = "quota_exhausted"
	CodeInvalidResponse Code = "invalid_response"
	CodeContentBlocked  Code = "content_blocked"
	CodeInvalidRequest  Code = "invalid_request"
	CodeCancelled       Code = "cancelled"
	CodeUnknown         Code = "unknown"
)

var summaries = map[Code]string{
	CodeTimeout:         "The generation service took too long to respond.",
	CodeUnavailable:     "The generation service is temporarily unavailable.",
	CodeRateLimited:     "The generation service is rate limiting requests.",
	CodeNetwork:         "The generation service could not be reached.",
	CodeUnauthenticated: "The generation service rejected our credentials.",
	CodeQuotaExhausted:  "The generation quota has been exhausted.",
	CodeInvalidResponse: "The generation service returned an unusable response.",
	CodeContentBlocked:  "The request was blocked by content safety filters.",
	CodeInvalidRequest:  "The generation request was rejected as invalid.",
	CodeCancelled:       "The generation attempt was cancelled.",
	CodeUnknown:         "Canvas generation failed unexpectedly.",
}

// Summary returns a user-facing sentence describing code.
func (c Code) Summary() string {
	if s, ok := summaries[c]; ok {
		return s
	}
	return summaries[CodeUnknown]
}

// Error is a classified failure from a generator.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError creates a classified generation error.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("generation %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrGenerationFailed for every classified error.
func (e *Error) Is(target error) bool {
	return target == ErrGenerationFailed
}

// CodeOf classifies err. Classified errors keep their code, deadlines map to
// timeout, and network errors map to network or timeout.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}
	return CodeUnknown
}
