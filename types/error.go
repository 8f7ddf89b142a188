package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Validation error codes. These are raised synchronously before any task
// has been created.
const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrPlanBuild    ErrorCode = "PLAN_BUILD"
)

// Execution error codes. Provider and timeout failures are transient and
// subject to retry; the rest are terminal for the operation that produced
// them.
const (
	ErrProvider       ErrorCode = "PROVIDER_ERROR"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrUnknownAgent   ErrorCode = "UNKNOWN_AGENT"
	ErrRecursionLimit ErrorCode = "RECURSION_LIMIT"
	ErrTaskNotFound   ErrorCode = "TASK_NOT_FOUND"
	ErrTaskCancelled  ErrorCode = "TASK_CANCELLED"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Agent     string    `json:"agent,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: code == ErrProvider || code == ErrTimeout,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent sets the agent the error originated from.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries the TASK_NOT_FOUND code.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrTaskNotFound
}
