package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService issues and validates the bearer tokens that identify job owners.
type JWTService interface {
	// GenerateToken creates a signed access token for ownerID.
	GenerateToken(ctx context.Context, ownerID uuid.UUID) (string, error)

	// ValidateToken checks the signature, lifetime and token type and
	// returns the claims of a valid access token.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of an access token.
type Claims struct {
	// OwnerID is the caller every job operation is scoped to.
	OwnerID uuid.UUID `json:"uid,omitempty"`

	TokenType string    `json:"type,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
