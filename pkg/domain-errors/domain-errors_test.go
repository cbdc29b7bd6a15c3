package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesOriginalCode(t *testing.T) {
	inner := New(CodeRateLimited, "quota exceeded")
	wrapped := Wrap(inner, CodeInternal, "limiter check failed")

	assert.True(t, HasCode(wrapped, CodeRateLimited), "wrapping must not launder the original code")
	assert.False(t, HasCode(wrapped, CodeInternal))
}

func TestWrapPlainError(t *testing.T) {
	inner := errors.New("connection refused")
	wrapped := Wrap(inner, CodeUnavailable, "counter store unreachable")

	require.True(t, HasCode(wrapped, CodeUnavailable))
	assert.ErrorIs(t, wrapped, inner)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("gate: %w", New(CodeForbidden, "insufficient permission"))
	assert.ErrorIs(t, err, &Error{Code: CodeForbidden})
	assert.NotErrorIs(t, err, &Error{Code: CodeUnauthenticated})
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeCSRF}
	assert.Equal(t, "csrf_rejected", err.Error())
}
