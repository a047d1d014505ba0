package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WrappedError(t *testing.T) {
	base := InsufficientStock("p1", 5, 6)
	wrapped := fmt.Errorf("create order: %w", base)

	assert.Equal(t, KindInsufficientStock, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindInsufficientStock))
	assert.False(t, IsKind(nil, KindInsufficientStock))

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, 5, e.Details["available"])
	assert.Equal(t, 6, e.Details["requested"])
	assert.Equal(t, "p1", e.Details["product_id"])
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("x: %w", OrderNotFound("o1"))
	assert.True(t, errors.Is(err, &Error{Kind: KindOrderNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}

func TestInternal_KeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Internal(cause)

	assert.Equal(t, "internal server error", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindCode(t *testing.T) {
	assert.Equal(t, "invalid_transition", KindInvalidTransition.Code())
	assert.Equal(t, "internal_error", Kind(999).Code())
}
