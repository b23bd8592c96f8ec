// Package mocks provides centralized mock implementations for testing.
//
// Each mock exposes an XxxFn field per interface method for custom behavior,
// plus default return values used when the function is nil. Calls are
// recorded where tests need to assert on them.
//
// Usage:
//
//	import "github.com/phrazzld/sketchpad-api/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    svc := &mocks.MockJobService{
//	        GetStatusFn: func(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
//	            return nil, service.ErrNotOwned
//	        },
//	    }
//
//	    // Use the mock in your test...
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Assert the interface with a var _ line
package mocks
