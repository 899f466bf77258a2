package nmtflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Upper bound for any single wait, including engine hints

	// OnRetry, if set, is called before each wait with the 1-based number
	// of the failed attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns defaults suited to a remote engine over a
// network. The pipeline never retries on its own; wrap an engine with
// NewRetryableEngine to opt in.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc[T any] func() (T, error)

// WithRetry runs fn until it succeeds, fails with an error IsRetryable
// rejects, or runs out of attempts. Waits grow exponentially from BaseDelay
// and honour an EngineError's RetryAfter, never exceeding MaxDelay. A wait
// that would outlast the context deadline is not started: the last engine
// error is returned instead of a deadline error that hides it.
//
// When every attempt failed, the result is a non-retryable EngineError
// wrapping the last failure, so outer layers do not retry again.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn RetryFunc[T]) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			return zero, exhausted(attempt+1, err)
		}

		delay := retryDelay(cfg, attempt, err)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return zero, exhausted(attempt+1, err)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay returns the wait after the given 0-based failed attempt.
func retryDelay(cfg RetryConfig, attempt int, err error) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt && (cfg.MaxDelay <= 0 || delay < cfg.MaxDelay); i++ {
		delay *= 2
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter > delay {
		delay = engineErr.RetryAfter
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

func exhausted(attempts int, err error) error {
	if attempts == 1 {
		return err
	}
	return &EngineError{
		Message: fmt.Sprintf("giving up after %d attempts", attempts),
		Cause:   err,
	}
}

// IsRetryable checks if an error is retryable. Only engine errors flagged
// as transient qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Retryable
	}

	return false
}

// RetryableEngine wraps an Engine so transient DecodeBatch failures are
// retried. A batch is retried as a whole; engines decode batches
// atomically, so no partial result is ever kept.
type RetryableEngine struct {
	engine Engine
	config RetryConfig
}

// NewRetryableEngine creates a new engine with retry logic.
func NewRetryableEngine(engine Engine, cfg RetryConfig) *RetryableEngine {
	return &RetryableEngine{
		engine: engine,
		config: cfg,
	}
}

// DecodeBatch implements Engine with retry logic.
func (e *RetryableEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	return WithRetry(ctx, e.config, func() ([][]string, error) {
		return e.engine.DecodeBatch(ctx, req)
	})
}

var _ Engine = (*RetryableEngine)(nil)
