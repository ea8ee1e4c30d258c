package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"stock-analyst/observability"
)

// RetryConfig is the backoff schedule for upstream HTTP fetches
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The marker keeps err's message and chain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// statusError describes a non-200 upstream response. Client errors other than
// timeouts and throttling will not improve on retry and are marked Permanent.
func statusError(service string, code int) error {
	err := fmt.Errorf("%s returned status %d", service, code)
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}

func retryable(err error) bool {
	var perm *permanentError
	return !errors.As(err, &perm) && !errors.Is(err, ErrSymbolNotFound) && RetryAny(err)
}

// Retry calls fn until it succeeds, returns a non-retryable error or the schedule
// runs out. Backoff doubles from InitialBackoff up to MaxBackoff.
func Retry[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	backoff := config.InitialBackoff

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !retryable(err) {
			return zero, err
		}
		if attempt >= config.MaxRetries {
			return zero, fmt.Errorf("failed after %d retries: %w", config.MaxRetries, err)
		}

		observability.WithContext(ctx).Warn("upstream call failed, backing off",
			"attempt", attempt+1,
			"max_retries", config.MaxRetries,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, config.MaxBackoff)
	}
}

// ErrAttemptsExhausted is wrapped by Attempt when every try failed
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// RetryAny treats every error except context cancellation as retryable
func RetryAny(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Attempt calls fn up to maxTries times with no delay between tries. Each try is independent.
// It returns the first success, or the error of a non-retryable failure immediately,
// or, after the last try, an error wrapping both ErrAttemptsExhausted and the last failure.
// The int result is the number of calls made.
func Attempt[T any](ctx context.Context, maxTries int, isRetryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	if maxTries < 1 {
		maxTries = 1
	}

	var lastErr error
	for try := 1; try <= maxTries; try++ {
		if err := ctx.Err(); err != nil {
			return zero, try - 1, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, try, nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return zero, try, err
		}
		if try < maxTries {
			observability.WithContext(ctx).Warn("attempt failed, retrying",
				"attempt", try,
				"max_attempts", maxTries,
				"error", err)
		}
	}

	return zero, maxTries, fmt.Errorf("%w after %d tries: %w", ErrAttemptsExhausted, maxTries, lastErr)
}
