package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing
type MockGenerator struct {
	// GenerateFn allows test cases to mock the Generate behavior
	GenerateFn func(ctx context.Context, req generation.Request) (domain.Result, error)

	// Default response values
	Result domain.Result
	Err    error

	// mu protects the call tracking state for concurrent test cases
	mu    sync.Mutex
	calls []generation.Request
}

// Generate implements the generation.Generator interface
func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (domain.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	return m.Result, m.Err
}

// CallCount returns how many times Generate was called
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded requests
func (m *MockGenerator) Calls() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]generation.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset resets the call tracking state
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SampleCanvasResult returns a small valid canvas result
func SampleCanvasResult() *domain.CanvasGenerationResult {
	return &domain.CanvasGenerationResult{
		Shapes: []domain.Shape{
			{Type: domain.ShapeRect, X: 10, Y: 20, Width: 100, Height: 50, Stroke: "#222222"},
			{Type: domain.ShapeText, X: 15, Y: 30, Text: "hello"},
		},
		Summary: "a labelled box",
		Model:   "mock",
	}
}

// NewMockGeneratorWithResult creates a MockGenerator that returns the specified result
func NewMockGeneratorWithResult(result domain.Result) *MockGenerator {
	return &MockGenerator{Result: result}
}

// NewMockGeneratorWithError creates a MockGenerator that returns the specified error
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorWithTransientFailure creates a MockGenerator that always
// fails with a retryable error
func MockGeneratorWithTransientFailure() *MockGenerator {
	return &MockGenerator{
		Err: generation.NewError(generation.CodeUnavailable, "service overloaded", nil),
	}
}

// MockGeneratorWithContentBlocked creates a MockGenerator that simulates content being blocked
func MockGeneratorWithContentBlocked() *MockGenerator {
	return &MockGenerator{
		Err: generation.NewError(generation.CodeContentBlocked, "prompt blocked", nil),
	}
}

// SequenceGenerator returns a GenerateFn that plays back outcomes in order
// and repeats the last one once they run out. A nil error entry yields the
// sample canvas result.
func SequenceGenerator(errs ...error) func(ctx context.Context, req generation.Request) (domain.Result, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context, generation.Request) (domain.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		var err error
		if len(errs) > 0 {
			idx := i
			if idx >= len(errs) {
				idx = len(errs) - 1
			}
			err = errs[idx]
		}
		i++
		if err != nil {
			return nil, err
		}
		return SampleCanvasResult(), nil
	}
}
