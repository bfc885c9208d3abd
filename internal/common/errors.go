package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. Everything except ErrNotFound propagates to the
// orchestrator's single top-level catch; parse failures never surface as
// errors at all (they are classified results).
var (
	ErrNotFound       = errors.New("document not found")
	ErrAuth           = errors.New("token exchange failed")
	ErrUpstream       = errors.New("model endpoint returned non-success status")
	ErrMissingContent = errors.New("model response contained no answer text")
	ErrPersistence    = errors.New("critical-path database write failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
