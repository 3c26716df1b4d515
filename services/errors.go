package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForbidden indicates the caller's plan does not include the operation
	ErrForbidden = errors.New("operation not permitted for current subscription")

	// ErrNotFound indicates a referenced entity does not exist or is deleted
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a rejected input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError reports an exhausted refresh quota. ResetAt tells the
// caller when the window rolls over.
type RateLimitedError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// UpstreamError reports a failed call to an external collaborator after
// retries were exhausted, or a mid-cycle persistence failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
