// Package retry runs infrastructure calls with exponential backoff when they
// fail with transient errors.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/logging"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy mirrors what the Redis and Postgres adapters use in production.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Do invokes fn until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. Failures are returned as *logging.OperationError.
func Do(ctx context.Context, logger *zap.Logger, p Policy, operation, requestID string, fn func() error) error {
	if p.Attempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := p.InitialBackoff
	opLogger := logging.WithOperation(logger, operation, requestID)
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= p.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransient(err) || attempt == p.Attempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransient reports whether err looks like a timeout or a temporary
// network condition worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
