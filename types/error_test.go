package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	err := NewError(ErrProvider, "upstream rejected request")
	assert.Equal(t, "[PROVIDER_ERROR] upstream rejected request", err.Error())

	cause := errors.New("connection reset")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestRetryableDefaults(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrProvider, true},
		{ErrTimeout, true},
		{ErrInvalidInput, false},
		{ErrUnknownAgent, false},
		{ErrRecursionLimit, false},
		{ErrPlanBuild, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(NewError(tt.code, "x")))
		})
	}
}

func TestIsRetryableWrapped(t *testing.T) {
	inner := NewError(ErrTimeout, "deadline exceeded")
	wrapped := fmt.Errorf("step 3: %w", inner)
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, ErrTimeout, GetErrorCode(wrapped))
}

func TestIsRetryablePlainError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewError(ErrTaskNotFound, "no such task")))
	assert.False(t, IsNotFound(NewError(ErrInternal, "boom")))
}
