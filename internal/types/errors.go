package types

import (
	"errors"
	"fmt"
	"strings"
)

// AuthenticationError means the provider rejected our credentials.
// Fatal to adapter construction, never retried.
type AuthenticationError struct {
	Provider   string
	Message    string
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// ModelError means an invalid or unknown model was requested.
type ModelError struct {
	Provider string
	Model    string
	Message  string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: invalid model %q: %s", e.Provider, e.Model, e.Message)
}

// BalanceError means the account or quota is exhausted. Never retried,
// always propagated.
type BalanceError struct {
	Provider   string
	Message    string
	StatusCode int
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s: insufficient balance (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimitError is the only retryable error class. RetryAfter carries the
// server's numeric Retry-After hint in seconds, 0 when absent.
type RateLimitError struct {
	Provider   string
	Message    string
	StatusCode int
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// StructuredOutputError means json-output was requested but the aggregated
// text did not parse as JSON after fence stripping.
type StructuredOutputError struct {
	Raw   string
	Cause error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output parse failed: %v", e.Cause)
}

func (e *StructuredOutputError) Unwrap() error { return e.Cause }

// RetryExhaustedError is returned after the retry policy gives up, so
// callers can distinguish "no data" from "failed after retries".
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// IsRateLimited reports whether err should be retried by the retry policy.
// Balance and authentication errors are explicitly excluded, even when
// their message happens to mention a 429.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var balErr *BalanceError
	if errors.As(err, &balErr) {
		return false
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}
	return strings.Contains(err.Error(), "429")
}

// RetryAfterSeconds extracts the server wait hint from err, if any.
func RetryAfterSeconds(err error) (int, bool) {
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
		return rlErr.RetryAfter, true
	}
	return 0, false
}
