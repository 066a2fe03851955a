package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValidation, "validation failed")
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeValidation)
	}
	if err.Err != nil {
		t.Error("Err should be nil for New()")
	}
	if err.Error() != "[E1001] validation failed" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestWrap(t *testing.T) {
	original := errors.New("connection refused")
	err := Wrap(ErrCodeAIUnavailable, "ai service call failed", original)

	if !errors.Is(err, original) {
		t.Error("wrapped error should match the original with errors.Is")
	}
	if err.Error() != "[E3001] ai service call failed: connection refused" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAnalysisNotFound, http.StatusNotFound},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeVCSWebhook, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeAnalysisLocked, http.StatusConflict},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeVCSUnsupported, http.StatusNotImplemented},
		{ErrCodeAITimeout, http.StatusGatewayTimeout},
		{ErrCodeAIResponse, http.StatusBadGateway},
		{ErrCodeDBQuery, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAsAppError_Wrapped(t *testing.T) {
	inner := ErrLocked("pr:1:main:42:abc")
	outer := fmt.Errorf("trigger analysis: %w", inner)

	appErr, ok := AsAppError(outer)
	if !ok {
		t.Fatal("AsAppError() should find a wrapped AppError")
	}
	if appErr.Code != ErrCodeAnalysisLocked {
		t.Errorf("Code = %s, want %s", appErr.Code, ErrCodeAnalysisLocked)
	}
	if !HasCode(outer, ErrCodeAnalysisLocked) {
		t.Error("HasCode() = false, want true")
	}
	if _, ok := AsAppError(errors.New("plain")); ok {
		t.Error("AsAppError() on a plain error = true")
	}
}

func TestWithDetails(t *testing.T) {
	err := ErrNotFound("analysis").WithDetails(map[string]int{"id": 7})
	if err.Details == nil {
		t.Fatal("Details not set")
	}
	if err.Message != "analysis not found" {
		t.Errorf("Message = %s", err.Message)
	}
}
