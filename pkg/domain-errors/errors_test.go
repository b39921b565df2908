package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodedErrors(t *testing.T) {
	t.Run("new carries code and message", func(t *testing.T) {
		err := New(CodeNotFound, "dialog not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.Equal(t, "dialog not found", err.Error())
	})

	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeUnavailable, "redis unavailable")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, CodeUnavailable, CodeOf(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load draft: %w", New(CodeConflict, "stale"))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(errors.New("boom"), CodeBadRequest))
	})
}
