package generation

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
)

// Request is one generation attempt for a job.
type Request struct {
	JobID   uuid.UUID
	OwnerID uuid.UUID
	Attempt int
	Payload domain.Payload
}

// Generator is the boundary between the job engine and external AI
// services. Implementations must honour ctx cancellation and return
// classified *Error values so the retry policy can decide what to do.
type Generator interface {
	// Generate produces the typed result for req.Payload.
	Generate(ctx context.Context, req Request) (domain.Result, error)
}
