package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyVerifier checks a presented secret against a stored hash.
type KeyVerifier interface {
	Verify(presented string) error
}

// OpsKeyVerifier guards the operator endpoints with a bcrypt-hashed key.
type OpsKeyVerifier struct {
	hash []byte
}

var _ KeyVerifier = (*OpsKeyVerifier)(nil)

// NewOpsKeyVerifier creates a verifier for hash. An empty hash yields a
// verifier that rejects every key with ErrOpsDisabled.
func NewOpsKeyVerifier(hash string) (*OpsKeyVerifier, error) {
	if hash == "" {
		return &OpsKeyVerifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("ops key hash is not a bcrypt hash: %w", err)
	}
	return &OpsKeyVerifier{hash: []byte(hash)}, nil
}

// Enabled reports whether an ops key hash is configured.
func (v *OpsKeyVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify implements KeyVerifier.
func (v *OpsKeyVerifier) Verify(presented string) error {
	if !v.Enabled() {
		return ErrOpsDisabled
	}
	if presented == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidOpsKey
		}
		return fmt.Errorf("failed to verify ops key: %w", err)
	}
	return nil
}

// HashOpsKey returns the bcrypt hash to configure as auth.ops_key_hash.
func HashOpsKey(key string, cost int) (string, error) {
	if key == "" {
		return "", errors.New("ops key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash ops key: %w", err)
	}
	return string(hash), nil
}
