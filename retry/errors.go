package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks a failure that may succeed if attempted again
	// (network errors, timeouts, 502/503/504).
	ErrTransient = errors.New("transient failure")

	// ErrRateLimited marks a failure caused by the remote side throttling us.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidMaxAttempts indicates a non-positive attempt budget.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// Transient wraps err so that Do retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// RateLimitError is returned for throttled calls. After carries the server's
// Retry-After hint and is used as a floor for the next delay.
type RateLimitError struct {
	After time.Duration
	Cause error
}

func (e *RateLimitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.After, e.Cause)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.After)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is transient or rate limited.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
