package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageUnavailable_MatchesSentinelAndCause(t *testing.T) {
	err := StorageUnavailable("get project", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, ErrStorageUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CodeStorageUnavailable, CodeOf(err))
}

func TestPersistenceFailure_WithoutCause(t *testing.T) {
	err := PersistenceFailure("metadata write failed", nil)

	assert.True(t, errors.Is(err, ErrPersistenceFailure))
	assert.Equal(t, "metadata write failed: persistence failure", err.Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NotFound("missing"), CodeNotFound},
		{"wrapped sentinel", errors.Join(errors.New("ctx"), ErrConflict), CodeConflict},
		{"expired", IdentityExpired("expired"), CodeIdentityExpired},
		{"plain", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
