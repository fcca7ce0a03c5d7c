package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicrelay/internal/constants"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Retry executes a database operation that returns only an error with retry logic
func Retry(ctx context.Context, operation func() error, operationName string) error {
	_, err := RetryValue(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}

// RetryValue executes a database operation returning a value with retry logic
func RetryValue[T any](ctx context.Context, operation func() (T, error), operationName string) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		value, err := operation()
		if err == nil {
			return value, nil
		}

		lastErr = err

		if !isRetryableDBError(err) {
			return zero, fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
		}

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return true
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exceptions, 40 is transaction rollback
		// (serialization failures and deadlocks).
		switch pqErr.Code.Class() {
		case "08", "40":
			return true
		}
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") {
		return true
	}

	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "connection refused") {
		return true
	}

	return false
}
