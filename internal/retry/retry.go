// Package retry provides a generic retry-with-backoff executor used by
// every network and storage call in the crawl pipeline.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/petlife-ingest/pet-crawler/internal/pet"
)

// Config controls one retried operation. Retryable decides, per error,
// whether another attempt is worthwhile; a nil Retryable retries nothing.
type Config struct {
	MaxAttempts       int
	Delay             time.Duration
	BackoffMultiplier float64
	Retryable         func(error) bool
}

// Backoff returns the wait before the attempt following the given one
// (1-based): Delay * Multiplier^(attempt-1).
func (c Config) Backoff(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(c.Delay) * math.Pow(mult, float64(attempt-1)))
}

// Do runs op until it succeeds, the error is not retryable, or the attempt
// budget is exhausted. The original error propagates unchanged.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || cfg.Retryable == nil || !cfg.Retryable(err) {
			return err
		}
		if sleepErr := sleep(ctx, cfg.Backoff(attempt)); sleepErr != nil {
			return fmt.Errorf("retry wait: %w", sleepErr)
		}
	}
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTPConfig classifies network errors, timeouts, and throttling status
// codes as retryable.
func HTTPConfig() Config {
	return Config{
		MaxAttempts:       3,
		Delay:             time.Second,
		BackoffMultiplier: 2,
		Retryable:         RetryableHTTP,
	}
}

// StorageConfig fails fast on write contention: fewer attempts, shorter
// delays, only lock/busy/timeout errors retried.
func StorageConfig() Config {
	return Config{
		MaxAttempts:       2,
		Delay:             200 * time.Millisecond,
		BackoffMultiplier: 2,
		Retryable:         RetryableStorage,
	}
}

// RetryableHTTP reports whether an HTTP fetch error is worth retrying.
func RetryableHTTP(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *pet.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case 429, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	var netErr *pet.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var timeoutErr net.Error
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RetryableStorage reports whether a store write error is worth retrying.
func RetryableStorage(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"locked", "busy", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
