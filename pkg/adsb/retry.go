package adsb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int

	// InitialDelay is the initial backoff delay (default: 1 second)
	InitialDelay time.Duration

	// MaxDelay is the maximum backoff delay (default: 60 seconds)
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier (default: 2.0 for exponential)
	Multiplier float64

	// RespectRetryAfter uses Retry-After header if available (default: true)
	RespectRetryAfter bool

	// Logger receives rate limit and retry messages (default: no-op)
	Logger *zap.Logger
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

// Backoff returns the wait before retry number attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	mult := c.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// wait picks the delay before retry attempt after err. A 429 carrying
// Retry-After wins over the computed backoff when RespectRetryAfter is set.
func (c RetryConfig) wait(attempt int, err error, logger *zap.Logger) time.Duration {
	d := c.Backoff(attempt)
	rle, ok := IsRateLimitError(err)
	if !ok {
		return d
	}
	if c.RespectRetryAfter && rle.RetryAfter > 0 {
		d = rle.RetryAfter
	}
	if rle.Headers.Remaining >= 0 {
		logger.Warn("rate limit hit",
			zap.Int("remaining", rle.Headers.Remaining),
			zap.Int("limit", rle.Headers.Limit),
			zap.Time("reset", rle.Headers.Reset))
	}
	return d
}

// IsRetryable reports whether an error is worth another attempt. Client
// errors (4xx other than 429) and context cancellation are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return false
	}
	return true
}

// RetryWithBackoff runs fn until it succeeds, fails with a final error,
// or MaxRetries retries have been spent.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithBackoffResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithBackoffResult is RetryWithBackoff for calls that return data,
// such as a poll of the flight source:
//
//	aircraft, err := RetryWithBackoffResult(ctx, cfg, func() ([]Aircraft, error) {
//	    return src.GetAircraft(ctx, lat, lon, radiusNM)
//	})
func RetryWithBackoffResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.wait(attempt, lastErr, logger)
			logger.Debug("retrying after error",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}
