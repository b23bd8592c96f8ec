package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/sketchpad-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobServiceError(t *testing.T) {
	dbErr := errors.New("connection reset by peer")

	tests := []struct {
		name     string
		err      error
		want     error
		wrapped  bool
		expected string
	}{
		{name: "nil", err: nil, want: nil},
		{name: "not owned passes through", err: fmt.Errorf("lookup: %w", ErrNotOwned), want: ErrNotOwned},
		{name: "not ready passes through", err: ErrNotReady, want: ErrNotReady},
		{name: "busy passes through", err: ErrBusy, want: ErrBusy},
		{name: "store not found becomes job not found", err: store.ErrJobNotFound, want: ErrJobNotFound},
		{
			name:     "unexpected error is wrapped",
			err:      dbErr,
			want:     dbErr,
			wrapped:  true,
			expected: "job service cancel failed: failed to load job: connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewJobServiceError("cancel", "failed to load job", tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}

			assert.ErrorIs(t, got, tt.want)
			var svcErr *JobServiceError
			assert.Equal(t, tt.wrapped, errors.As(got, &svcErr))
			if tt.wrapped {
				require.NotNil(t, svcErr)
				assert.Equal(t, "cancel", svcErr.Operation)
				assert.Equal(t, tt.expected, got.Error())
			} else {
				assert.Same(t, tt.want, got)
			}
		})
	}
}

func TestJobServiceError_WithoutCause(t *testing.T) {
	err := &JobServiceError{Operation: "sweep", Message: "retention disabled"}
	assert.Equal(t, "job service sweep failed: retention disabled", err.Error())
	assert.Nil(t, err.Unwrap())
}
