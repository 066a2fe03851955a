package aiclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for response handling
var (
	// ErrInvalidResponse indicates the body could not be parsed as JSON
	ErrInvalidResponse = errors.New("invalid response format")

	// ErrMissingFields indicates a result without both comment and issues
	ErrMissingFields = errors.New("result is missing comment or issues")

	// ErrNoFinalEvent indicates a stream ended without a final or result event
	ErrNoFinalEvent = errors.New("stream ended without a final event")
)

// ClientError represents a failure talking to the AI service
type ClientError struct {
	// Operation is the step that failed (e.g., "stream", "fallback", "parse")
	Operation string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status of the response, 0 if none was received
	StatusCode int

	// Err is the underlying error (if any)
	Err error

	// Retryable indicates whether the operation can be retried
	Retryable bool
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[ai.%s] %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[ai.%s] %s", e.Operation, e.Message)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.Err
}

func newClientError(operation, message string, err error) *ClientError {
	return &ClientError{Operation: operation, Message: message, Err: err}
}

func newRetryableError(operation, message string, status int, err error) *ClientError {
	return &ClientError{Operation: operation, Message: message, StatusCode: status, Err: err, Retryable: true}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}
