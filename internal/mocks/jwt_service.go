package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/service/auth"
)

// MockJWTService implements auth.JWTService for testing
type MockJWTService struct {
	// GenerateTokenFn allows test cases to mock the GenerateToken behavior
	GenerateTokenFn func(ctx context.Context, ownerID uuid.UUID) (string, error)

	// ValidateTokenFn allows test cases to mock the ValidateToken behavior
	ValidateTokenFn func(ctx context.Context, tokenString string) (*auth.Claims, error)

	// Default values used when functions aren't explicitly defined
	Token       string
	Err         error
	ValidateErr error
	Claims      *auth.Claims
}

var _ auth.JWTService = (*MockJWTService)(nil)

// GenerateToken implements the auth.JWTService interface
func (m *MockJWTService) GenerateToken(ctx context.Context, ownerID uuid.UUID) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, ownerID)
	}
	return m.Token, m.Err
}

// ValidateToken implements the auth.JWTService interface
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return m.Claims, m.ValidateErr
}

// NewMockJWTServiceFor returns a mock that accepts exactly token and maps
// it to ownerID. Any other token is rejected with auth.ErrInvalidToken.
func NewMockJWTServiceFor(token string, ownerID uuid.UUID) *MockJWTService {
	return &MockJWTService{
		ValidateTokenFn: func(_ context.Context, presented string) (*auth.Claims, error) {
			if presented != token {
				return nil, auth.ErrInvalidToken
			}
			return &auth.Claims{OwnerID: ownerID, TokenType: "access", Subject: ownerID.String()}, nil
		},
	}
}
