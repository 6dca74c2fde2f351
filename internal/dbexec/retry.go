package dbexec

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidAttempts is returned when maxAttempts is below 1.
var ErrInvalidAttempts = errors.New("dbexec: maxAttempts must be at least 1")

// Sleeper pauses between attempts. A non-nil return stops retrying.
type Sleeper func(ctx context.Context, d time.Duration) error

type retryConfig struct {
	retryIf func(error) bool
	sleep   Sleeper
}

// RetryOption customizes RunWithRetry.
type RetryOption func(*retryConfig)

// WithRetryIf limits retries to errors for which pred returns true. Other
// errors are returned immediately. By default every error is retried.
func WithRetryIf(pred func(error) bool) RetryOption {
	return func(c *retryConfig) { c.retryIf = pred }
}

// WithSleeper replaces the pause between attempts.
func WithSleeper(s Sleeper) RetryOption {
	return func(c *retryConfig) { c.sleep = s }
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunWithRetry calls block up to maxAttempts times, waiting delay between
// failed attempts. There is no wait after the last attempt. On exhaustion the
// last error is returned unchanged.
//
// If ctx is cancelled while waiting, the error of the attempt that just failed
// is returned.
func RunWithRetry[T any](ctx context.Context, block func(ctx context.Context) (T, error), maxAttempts int, delay time.Duration, opts ...RetryOption) (T, error) {
	var zero T
	if maxAttempts < 1 {
		return zero, ErrInvalidAttempts
	}

	cfg := retryConfig{
		retryIf: func(error) bool { return true },
		sleep:   sleep,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zerolog.Ctx(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := block(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.retryIf(err) {
			log.Debug().Err(err).Int("attempt", attempt).Msg("error is not retryable")
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Dur("delay", delay).
			Msg("attempt failed, retrying")

		if serr := cfg.sleep(ctx, delay); serr != nil {
			log.Warn().Err(serr).Int("attempt", attempt).Msg("retry wait interrupted")
			return zero, err
		}
	}

	log.Error().Err(lastErr).Int("attempts", maxAttempts).Msg("all attempts failed")
	return zero, lastErr
}

// Retry wraps block so that every call goes through RunWithRetry.
func Retry[T any](block func(ctx context.Context) (T, error), maxAttempts int, delay time.Duration, opts ...RetryOption) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return RunWithRetry(ctx, block, maxAttempts, delay, opts...)
	}
}
