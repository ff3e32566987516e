package service

import (
	"errors"
	"fmt"
)

// Common service errors. The API layer maps them to status codes.
var (
	// ErrNotReady indicates that an asynchronous result has not been produced yet.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotReady = errors.New("result not ready")

	// ErrNilDependency is returned by constructors given a nil collaborator.
	ErrNilDependency = errors.New("required dependency is nil")
)

// ExplanationServiceError is a custom error type for explanation service errors.
type ExplanationServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ExplanationServiceError.
func (e *ExplanationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("explanation service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("explanation service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ExplanationServiceError) Unwrap() error {
	return e.Err
}

func newExplanationError(operation, message string, err error) *ExplanationServiceError {
	return &ExplanationServiceError{Operation: operation, Message: message, Err: err}
}
