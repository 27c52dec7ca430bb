package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(ErrTimeout))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", ErrTimeout)))
	assert.True(t, Retryable(&Error{Op: "send", Retryable: true, Err: errors.New("broken pipe")}))
	assert.False(t, Retryable(&Error{Op: "send", Retryable: false, Err: errors.New("invalid topic")}))
	assert.True(t, Retryable(errors.New("unclassified")), "unknown errors default to retryable")
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Op: "send orders", Retryable: true, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "send orders")
}
