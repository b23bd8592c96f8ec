package mocks

import (
	"sync"

	"github.com/phrazzld/sketchpad-api/internal/service/auth"
)

// MockKeyVerifier implements auth.KeyVerifier for testing
type MockKeyVerifier struct {
	// VerifyFn allows for custom verification logic in tests
	VerifyFn func(presented string) error

	// Accept is the only key Verify accepts when VerifyFn is nil.
	Accept string

	mu    sync.Mutex
	calls []string
}

var _ auth.KeyVerifier = (*MockKeyVerifier)(nil)

// Verify implements the auth.KeyVerifier interface
func (m *MockKeyVerifier) Verify(presented string) error {
	m.mu.Lock()
	m.calls = append(m.calls, presented)
	m.mu.Unlock()

	if m.VerifyFn != nil {
		return m.VerifyFn(presented)
	}
	if presented == "" {
		return auth.ErrMissingToken
	}
	if presented != m.Accept {
		return auth.ErrInvalidOpsKey
	}
	return nil
}

// CallCount returns how many times Verify was called.
func (m *MockKeyVerifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
