// Package lock provides the cell execution lock. Only one process may
// drive a robot cell at a time; the lock is held for the duration of one
// run's execution and renewed after every step.
package lock

import (
	"context"
	"errors"
	"time"
)

// Lock defines the interface for distributed locks.
type Lock interface {
	// Acquire attempts to acquire the lock.
	// Returns true if the lock was acquired, false if already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases the lock.
	Release(ctx context.Context, key string) error

	// Extend extends the TTL of a held lock.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

// Common errors.
var (
	ErrLockNotHeld = errors.New("lock not held")
	ErrLockHeld    = errors.New("lock already held by another owner")
	ErrLockExpired = errors.New("lock has expired")
	ErrInvalidTTL  = errors.New("invalid TTL")
)

// CellKey is the lock key of a cell.
func CellKey(cell string) string {
	return "cell:" + cell + ":execution"
}

// LockOption configures AcquireWithRetry.
type LockOption func(*lockOptions)

type lockOptions struct {
	retryInterval time.Duration
	maxRetries    int
}

// WithRetryInterval sets the interval between lock acquisition retries.
func WithRetryInterval(interval time.Duration) LockOption {
	return func(o *lockOptions) {
		o.retryInterval = interval
	}
}

// WithMaxRetries sets the maximum number of acquisition retries.
func WithMaxRetries(max int) LockOption {
	return func(o *lockOptions) {
		o.maxRetries = max
	}
}

// AcquireWithRetry attempts to acquire a lock with retries.
func AcquireWithRetry(ctx context.Context, lock Lock, key string, ttl time.Duration, opts ...LockOption) (bool, error) {
	options := &lockOptions{
		retryInterval: 100 * time.Millisecond,
		maxRetries:    10,
	}
	for _, opt := range opts {
		opt(options)
	}

	for i := 0; i <= options.maxRetries; i++ {
		acquired, err := lock.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		if i < options.maxRetries {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(options.retryInterval):
			}
		}
	}
	return false, nil
}
