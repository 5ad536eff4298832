package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy bounds how a single external call is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt after a transient failure.
	BaseDelay time.Duration
	// RateLimitDelay is the delay before the second attempt after a throttled
	// response. Values below BaseDelay are raised to BaseDelay.
	RateLimitDelay time.Duration
	// MaxDelay caps the exponential growth. Zero means uncapped.
	MaxDelay time.Duration
	// AttemptTimeout bounds each individual attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration
	// OnRetry, if set, is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the policy used for catalog and summarization calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		RateLimitDelay: 2 * time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Delay returns the wait before attempt+1 after attempt failed with err.
// It doubles per attempt, and rate limited failures start from the larger base.
func (p Policy) Delay(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if errors.Is(err, ErrRateLimited) && p.RateLimitDelay > base {
		base = p.RateLimitDelay
	}
	limit := p.MaxDelay
	if limit > 0 && limit < base {
		limit = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			delay = limit
			break
		}
	}

	var rl *RateLimitError
	if errors.As(err, &rl) && rl.After > delay {
		delay = rl.After
	}
	return delay
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. Delays never shrink across attempts.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	var prevDelay time.Duration
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, p.AttemptTimeout, op)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := max(p.Delay(attempt, lastErr), prevDelay)
		prevDelay = delay
		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "delay", delay, "error", lastErr)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := op(attemptCtx)
	// A per-attempt deadline is a transient failure as long as the caller's
	// own context is still live.
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !IsRetryable(err) {
		return Transient(err)
	}
	return err
}

// RetryWithBackoff retries an operation with exponential backoff regardless
// of the error kind. Used for idempotent local writes such as index upserts.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
