package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/sketchpad-api/internal/redact"
)

// RedactingLogFormatter hides the access_token query parameter from the
// request line before the wrapped formatter records it. The request seen by
// later handlers is left untouched.
type RedactingLogFormatter struct {
	next chimiddleware.LogFormatter
}

// NewRedactingLogFormatter wraps next, typically a chi DefaultLogFormatter.
func NewRedactingLogFormatter(next chimiddleware.LogFormatter) *RedactingLogFormatter {
	return &RedactingLogFormatter{next: next}
}

// NewLogEntry implements chimiddleware.LogFormatter.
func (f *RedactingLogFormatter) NewLogEntry(r *http.Request) chimiddleware.LogEntry {
	return f.next.NewLogEntry(withoutAccessToken(r))
}

func withoutAccessToken(r *http.Request) *http.Request {
	q := r.URL.Query()
	if !q.Has(AccessTokenQueryParam) {
		return r
	}
	q.Set(AccessTokenQueryParam, redact.RedactedTokenPlaceholder)

	clone := r.Clone(r.Context())
	clone.URL.RawQuery = q.Encode()
	clone.RequestURI = clone.URL.RequestURI()
	return clone
}
