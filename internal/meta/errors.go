package meta

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass distinguishes upstream failure modes so callers can
// decide whether to retry.
type ErrorClass int

const (
	// ErrClassNotConfigured means the token or account id is missing or
	// still a placeholder. Never retried.
	ErrClassNotConfigured ErrorClass = iota
	// ErrClassRateLimited means the upstream throttled us. Retryable.
	ErrClassRateLimited
	// ErrClassUpstream is any other upstream error, reported verbatim.
	ErrClassUpstream
)

// APIError is an error returned by the upstream advertising API.
type APIError struct {
	Class      ErrorClass
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	switch e.Class {
	case ErrClassNotConfigured:
		return "upstream API not configured: " + e.Message
	case ErrClassRateLimited:
		return fmt.Sprintf("upstream rate limit (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("upstream API error (status %d): %s", e.StatusCode, e.Message)
	}
}

// NotConfiguredError builds the non-retryable configuration error.
func NotConfiguredError() *APIError {
	return &APIError{
		Class:   ErrClassNotConfigured,
		Message: "set META_ACCESS_TOKEN and META_AD_ACCOUNT_ID in settings",
	}
}

// rate-limit error codes from the Graph API error taxonomy
const (
	codeAPITooManyCalls  = 17
	codeAPIUserTooMany   = 4
	codeAdAccountLimited = 80004
)

func classify(status, code int, message string) ErrorClass {
	lower := strings.ToLower(message)
	if status == 429 ||
		code == codeAPITooManyCalls || code == codeAPIUserTooMany || code == codeAdAccountLimited ||
		strings.Contains(lower, "limit") || strings.Contains(lower, "user request") {
		return ErrClassRateLimited
	}
	return ErrClassUpstream
}

// IsNotConfigured reports whether err is a configuration error.
func IsNotConfigured(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == ErrClassNotConfigured
}

// IsRateLimited reports whether err is an upstream throttle error.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == ErrClassRateLimited
}
