package agents

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryingRunner wraps a Runner with bounded retries for transport faults.
// Agent-level failures (a decoded Result with status "error") are returned to
// the caller untouched; only the hop to the sidecar is retried.
type RetryingRunner struct {
	inner    Runner
	attempts int
	delay    time.Duration
}

// NewRetryingRunner creates a RetryingRunner making up to attempts tries with
// exponential backoff starting at delay.
func NewRetryingRunner(inner Runner, attempts int, delay time.Duration) *RetryingRunner {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingRunner{inner: inner, attempts: attempts, delay: delay}
}

func (r *RetryingRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			if err := waitForBackoff(ctx, backoff(r.delay, attempt-1)); err != nil {
				return nil, err
			}
		}

		result, err := r.inner.Run(ctx, inv)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// isRetryable classifies transport errors. Timeouts and network faults are
// retryable; a cancelled context means the caller is going away.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
		"status 429",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// backoff doubles the base delay per attempt.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// waitForBackoff sleeps for the delay or returns early when the context ends.
func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Runner = (*RetryingRunner)(nil)
