// Package retry re-runs operations that fail with transient errors, with
// exponential backoff and jitter.
package retry

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"
)

type Config struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(op string)
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     2 * time.Second,
		Multiplier:  2.0,
		Timeout:     5 * time.Second,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out.
func Do(ctx context.Context, cfg Config, op string, fn func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error

	for attempt := range attempts {
		err := runAttempt(ctx, cfg.Timeout, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		// The caller's own context ending is never retried.
		if ctx.Err() != nil {
			return err
		}
		if cfg.Retryable == nil || !cfg.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := backoff(cfg, attempt)
		log.Printf("[retry] %s attempt %d/%d failed: %v (retrying in %s)", op, attempt+1, attempts, err, wait)
		if cfg.OnRetry != nil {
			cfg.OnRetry(op)
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func backoff(cfg Config, attempt int) time.Duration {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}

	// ±20% jitter
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
