package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "missing")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches inner code through wraps", func(t *testing.T) {
		inner := New(CodeInvalidState, "bad transition")
		outer := Wrap(fmt.Errorf("transition: %w", inner), CodeInternal, "failed")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeInvalidState))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		_, ok := GetCode(errors.New("boom"))
		assert.False(t, ok)
	})
}

func TestDetailsOf(t *testing.T) {
	inner := New(CodeConflict, "duplicate").WithDetail("existing_id", "a").WithDetail("subject_id", "s1")
	outer := Wrap(inner, CodeConflict, "register failed").WithDetail("subject_id", "s2")

	details := DetailsOf(outer)
	require.Len(t, details, 2)
	assert.Equal(t, "a", details["existing_id"])
	assert.Equal(t, "s2", details["subject_id"], "outermost detail wins")
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(errors.New("connection reset"), CodeUnavailable, "store unavailable")
	assert.Equal(t, "store unavailable: connection reset", err.Error())
	assert.ErrorIs(t, err, err.Err)
}
