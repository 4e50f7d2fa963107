package service

import (
	"errors"
	"fmt"
	"time"
)

// Operation outcomes callers branch on. Validation and authorization
// failures come back as these structured errors; infrastructure failures
// are wrapped and logged, never masked as a user-facing category.
var (
	// ErrNotFound deliberately also covers foreign private pastes so that
	// their existence never leaks.
	ErrNotFound = errors.New("paste not found")
	// ErrExpired is reported for pastes whose expiry has passed,
	// regardless of visibility or password correctness.
	ErrExpired = errors.New("paste expired")
	// ErrPasswordRequired means the paste is gated and no password came
	// with the request.
	ErrPasswordRequired = errors.New("password required")
	// ErrPasswordInvalid means the supplied password did not match.
	ErrPasswordInvalid = errors.New("password invalid")
	// ErrUnauthorized means the requester does not own the paste.
	ErrUnauthorized = errors.New("not the paste owner")
	// ErrDuplicateSlug means a requested custom slug is already taken.
	ErrDuplicateSlug = errors.New("custom url taken")
)

// ValidationError rejects malformed input before the store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RateLimitError signals a throttled operation; retry after the window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
