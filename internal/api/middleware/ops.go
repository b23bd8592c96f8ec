package middleware

import (
	"errors"
	"net/http"

	"github.com/phrazzld/sketchpad-api/internal/api/shared"
	"github.com/phrazzld/sketchpad-api/internal/service/auth"
)

// OpsKeyHeader carries the operator key for the ops endpoints.
const OpsKeyHeader = "X-Ops-Key"

// RequireOpsKey rejects requests whose X-Ops-Key does not verify. When no
// ops key is configured the routes answer 404.
func RequireOpsKey(verifier auth.KeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := verifier.Verify(r.Header.Get(OpsKeyHeader))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrOpsDisabled):
				shared.RespondWithError(w, r, http.StatusNotFound, "Not found")
			case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidOpsKey):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid ops key", err,
					shared.WithElevatedLogLevel())
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
		})
	}
}
