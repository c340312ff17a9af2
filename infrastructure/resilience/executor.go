// Package resilience provides fault-tolerant execution for calls that leave
// the process: robot link round trips and language model requests.
package resilience

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// Executor wraps calls with a bulkhead, a circuit breaker, a timeout and,
// when enabled, retries.
type Executor[T any] struct {
	bulkhead bulkhead.Bulkhead[T]
	breaker  circuitbreaker.CircuitBreaker[T]
	retry    retry.Retry[T]
	retries  bool
	timeout  time.Duration
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent is the maximum concurrent calls (bulkhead).
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryEnabled turns retries on. Robot steps are not idempotent, so
	// retries stay off for the robot link.
	RetryEnabled bool

	// RetryMaxAttempts is the maximum number of attempts.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds a single call.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns sensible defaults for the robot link.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           1,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       200 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          30 * time.Second,
	}
}

// ModelExecutorConfig returns defaults for language model calls.
func ModelExecutorConfig() ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.MaxConcurrent = 4
	cfg.RetryEnabled = true
	cfg.RetryMaxAttempts = 2
	return cfg
}

// NewExecutor creates a new resilient executor.
func NewExecutor[T any](config ExecutorConfig) *Executor[T] {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	attempts := config.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Executor[T]{
		bulkhead: bulkhead.New[T](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[T](circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		retry: retry.New[T](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
		}),
		retries: config.RetryEnabled,
		timeout: config.DefaultTimeout,
	}
}

// Execute runs fn under the configured protections.
func (e *Executor[T]) Execute(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	return e.bulkhead.Execute(ctx, func(ctx context.Context) (T, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}

		return e.breaker.Execute(ctx, func(ctx context.Context) (T, error) {
			if e.retries {
				return e.retry.Do(ctx, fn)
			}
			return fn(ctx)
		})
	})
}

// CircuitBreakerState returns the current circuit breaker state.
func (e *Executor[T]) CircuitBreakerState() circuitbreaker.State {
	return e.breaker.State()
}
