package main

import (
	"strings"
	"testing"

	"github.com/phrazzld/sketchpad-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestReadKey(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{"ops-secret"}, want: "ops-secret"},
		{name: "stdin", stdin: "piped-secret\n", want: "piped-secret"},
		{name: "stdin without newline", stdin: "piped", want: "piped"},
		{name: "empty stdin", stdin: "", wantErr: true},
		{name: "too many arguments", args: []string{"a", "b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readKey(tt.args, strings.NewReader(tt.stdin))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerate(t *testing.T) {
	hash, err := generate("ops-secret", bcrypt.MinCost)
	require.NoError(t, err)

	v, err := auth.NewOpsKeyVerifier(hash)
	require.NoError(t, err)
	assert.NoError(t, v.Verify("ops-secret"))
	assert.ErrorIs(t, v.Verify("other"), auth.ErrInvalidOpsKey)

	_, err = generate("ops-secret", bcrypt.MaxCost+1)
	assert.Error(t, err)
}
