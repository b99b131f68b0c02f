package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPlanGenerationFailed is returned once every attempt has failed.
// The event that asked for the plan is aborted with no tracker mutations.
var ErrPlanGenerationFailed = errors.New("plan generation failed")

// DefaultBackoffBase is the base delay of the default linear backoff
const DefaultBackoffBase = 1 * time.Second

// BackoffFunc returns how long to wait after the given failed attempt (1-based)
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits attempt*base after each failure: base, 2*base, ...
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// NoBackoff retries immediately
func NoBackoff(int) time.Duration { return 0 }

// RetryPolicy holds retry configuration for model calls
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	Backoff     BackoffFunc   // Delay between attempts (default: linear, 1s base)
	Timeout     time.Duration // Per-attempt timeout (default: 60s, 0 = none)
}

// DefaultRetryPolicy returns the default retry configuration
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(DefaultBackoffBase),
		Timeout:     60 * time.Second,
	}
}

// retryWithBackoff runs fn up to MaxAttempts times, sleeping between attempts.
// Every failure is treated as transient; only context cancellation stops early.
func (p *Planner) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	maxAttempts := p.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.retry.Timeout)
		}
		err := p.callWithSlot(attemptCtx, fn)
		cancel()

		if err == nil {
			if attempt > 1 {
				p.log.Info("model call succeeded after retries", "operation", operation, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s canceled: %w", ErrPlanGenerationFailed, operation, ctx.Err())
		}
		if attempt == maxAttempts {
			break
		}

		backoff := p.retry.Backoff(attempt)
		p.log.Warn("model call failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", backoff,
			"error", err)

		if backoff <= 0 {
			continue
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s canceled during backoff: %w", ErrPlanGenerationFailed, operation, ctx.Err())
		}
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrPlanGenerationFailed, operation, maxAttempts, lastErr)
}

// callWithSlot holds a concurrency slot for one call only, so an event
// sleeping between attempts does not block other events.
func (p *Planner) callWithSlot(ctx context.Context, fn func(context.Context) error) error {
	if p.concurrencySem == nil {
		return fn(ctx)
	}
	if err := p.concurrencySem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire concurrency slot: %w", err)
	}
	defer p.concurrencySem.Release(1)
	return fn(ctx)
}
