package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/overhead/pkg/config"
)

// ReconnectWithRetry attempts to connect to the database with exponential backoff.
// This provides resilience against temporary database outages.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between attempts
//
// Returns: Connected database or the last error once attempts are exhausted
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := initialDelay
	for attempt := 1; ; attempt++ {
		logger.Debug("database connection attempt", zap.Int("attempt", attempt))

		db, err := Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				logger.Info("database reconnected", zap.Int("attempts", attempt))
			}
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		logger.Warn("database connection failed",
			zap.Error(err),
			zap.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(delay):
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// EnsureConnection checks if the database connection is alive and reconnects if needed.
// Returns the active connection, either the original or a new one.
func EnsureConnection(ctx context.Context, db *DB, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	if db == nil {
		return ReconnectWithRetry(ctx, cfg, 3, time.Second, logger)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if logger != nil {
			logger.Warn("database connection lost", zap.Error(err))
		}
		db.Close()
		return ReconnectWithRetry(ctx, cfg, 3, time.Second, logger)
	}

	return db, nil
}

// HealthCheck performs a round trip query against the database.
// Returns nil if the database is healthy and ready for operations.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil {
		return errors.New("database not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected result: %d", result)
	}

	return nil
}

// connErrors are substrings that mark a transient connection failure.
var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"bad connection",
	"eof",
	"timeout",
}

// isConnectionError reports whether err looks like a dropped connection.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation with automatic retry on connection failures.
// Errors that are not connection failures are returned immediately.
func WithRetry(ctx context.Context, operation func(context.Context) error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isConnectionError(err) {
			return err
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}

	return lastErr
}
