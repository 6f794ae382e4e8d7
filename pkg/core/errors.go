package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes model provider failures.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error is a model provider failure.
type Error struct {
	Type       ErrorType
	Message    string
	Provider   string
	StatusCode int
	RetryAfter *int

	cause error
}

func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", prefix, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// IsRetryable reports whether the same request may succeed later.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewProviderError wraps a transport or decoding failure from provider.
func NewProviderError(provider string, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Type: ErrProvider, Message: msg, Provider: provider, cause: cause}
}

// ErrorFromStatus maps an upstream HTTP status to an Error.
// message is the provider's own error text when it could be decoded.
func ErrorFromStatus(provider string, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	var t ErrorType
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		t = ErrInvalidRequest
	case status == http.StatusUnauthorized:
		t = ErrAuthentication
	case status == http.StatusForbidden:
		t = ErrPermission
	case status == http.StatusNotFound:
		t = ErrNotFound
	case status == http.StatusTooManyRequests:
		t = ErrRateLimit
	case status == 529 || status == http.StatusServiceUnavailable:
		t = ErrOverloaded
	case status >= 500:
		t = ErrAPI
	default:
		t = ErrProvider
	}
	return &Error{Type: t, Message: message, Provider: provider, StatusCode: status}
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}
