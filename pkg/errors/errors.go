// Package errors provides custom error types for the application.
// It defines domain-specific errors with error codes for better error handling and API responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal     ErrorCode = "E1000"
	ErrCodeValidation   ErrorCode = "E1001"
	ErrCodeNotFound     ErrorCode = "E1002"
	ErrCodeConflict     ErrorCode = "E1003"
	ErrCodeForbidden    ErrorCode = "E1004"
	ErrCodeUnauthorized ErrorCode = "E1005"
	ErrCodeRateLimited  ErrorCode = "E1006"

	// VCS provider errors (2xxx)
	ErrCodeVCSRequest     ErrorCode = "E2001"
	ErrCodeVCSAuth        ErrorCode = "E2002"
	ErrCodeVCSNotFound    ErrorCode = "E2003"
	ErrCodeVCSWebhook     ErrorCode = "E2004"
	ErrCodeVCSUnsupported ErrorCode = "E2005"

	// AI service errors (3xxx)
	ErrCodeAIUnavailable ErrorCode = "E3001"
	ErrCodeAITimeout     ErrorCode = "E3002"
	ErrCodeAIResponse    ErrorCode = "E3003"

	// Analysis errors (4xxx)
	ErrCodeAnalysisNotFound ErrorCode = "E4001"
	ErrCodeAnalysisFailed   ErrorCode = "E4002"
	ErrCodeAnalysisLocked   ErrorCode = "E4003"

	// Database errors (5xxx)
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"

	// Configuration errors (6xxx)
	ErrCodeConfigNotFound   ErrorCode = "E6001"
	ErrCodeConfigInvalid    ErrorCode = "E6002"
	ErrCodeConfigParse      ErrorCode = "E6003"
	ErrCodeJWTSecretInvalid ErrorCode = "E6004"
)

// Exit codes for application startup failures
const (
	// ExitCodeConfigValidation indicates configuration validation failure
	ExitCodeConfigValidation = 2
)

// AppError represents an application-level error with code and context
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeVCSNotFound, ErrCodeAnalysisNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeVCSWebhook:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeVCSAuth:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeAnalysisLocked:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeVCSUnsupported:
		return http.StatusNotImplemented
	case ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	case ErrCodeAIUnavailable, ErrCodeAIResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// ErrInternal creates an internal server error
func ErrInternal(message string, err error) *AppError {
	return Wrap(ErrCodeInternal, message, err)
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// ErrLocked creates a contention error for an analysis target that is already being processed
func ErrLocked(lockKey string) *AppError {
	return New(ErrCodeAnalysisLocked, "analysis is already in progress, try again later").
		WithDetails(map[string]string{"lock_key": lockKey})
}

// AsAppError attempts to convert an error to AppError, following wrapped errors
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given application error code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
