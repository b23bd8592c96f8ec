package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/phrazzld/sketchpad-api/internal/generation"
	"google.golang.org/genai"
)

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a canvas request has no prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrUnsupportedPayload is returned for payload kinds this generator cannot draw.
	ErrUnsupportedPayload = errors.New("unsupported payload kind")
)

// classifyError converts an error from the Gemini client into a classified
// generation error. Context errors are passed through so the caller can
// tell its own deadline from a slow upstream.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if apiErr, ok := asAPIError(err); ok {
		code := codeForStatus(apiErr.Code, apiErr.Status, apiErr.Message)
		return generation.NewError(code, apiErr.Status, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return generation.NewError(generation.CodeTimeout, "request to Gemini timed out", err)
		}
		return generation.NewError(generation.CodeNetwork, "could not reach Gemini", err)
	}

	return generation.NewError(generation.CodeUnknown, "Gemini request failed", err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

// codeForStatus maps an HTTP status from the Gemini API. A 429 that names a
// quota is exhausted for good; any other 429 is throttling.
func codeForStatus(status int, statusText, message string) generation.Code {
	switch {
	case status == http.StatusTooManyRequests:
		lower := strings.ToLower(message)
		if strings.Contains(lower, "quota") && !strings.Contains(lower, "per minute") {
			return generation.CodeQuotaExhausted
		}
		return generation.CodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return generation.CodeUnauthenticated
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return generation.CodeTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return generation.CodeInvalidRequest
	case status >= 500:
		return generation.CodeUnavailable
	case statusText == "RESOURCE_EXHAUSTED":
		return generation.CodeRateLimited
	default:
		return generation.CodeUnknown
	}
}
