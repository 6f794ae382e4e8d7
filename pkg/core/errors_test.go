package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Type: ErrInvalidRequest, Message: "invalid model format"}
	if got, want := err.Error(), "invalid_request_error: invalid model format"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	err = &Error{Type: ErrRateLimit, Message: "slow down", Provider: "openai", StatusCode: 429}
	if got, want := err.Error(), "openai: rate_limit_error: slow down (status 429)"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorFromStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrPermission},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimit},
		{529, ErrOverloaded},
		{http.StatusServiceUnavailable, ErrOverloaded},
		{http.StatusBadGateway, ErrAPI},
		{http.StatusTeapot, ErrProvider},
	}
	for _, tc := range cases {
		err := ErrorFromStatus("anthropic", tc.status, "")
		if err.Type != tc.want {
			t.Fatalf("status %d: type = %q, want %q", tc.status, err.Type, tc.want)
		}
		if err.Message == "" && tc.status != 529 {
			t.Fatalf("status %d: empty message", tc.status)
		}
	}
}

func TestNewProviderError_Unwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("gemini", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false")
	}
	if err.Provider != "gemini" || err.Type != ErrProvider {
		t.Fatalf("err = %+v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("wrapped: %w", ErrorFromStatus("openai", 500, "boom"))) {
		t.Fatalf("500 should be retryable")
	}
	if IsRetryable(ErrorFromStatus("openai", 401, "bad key")) {
		t.Fatalf("401 should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain error should not be retryable")
	}
}
