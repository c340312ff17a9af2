package resilience

import (
	"time"

	"github.com/felixgeelhaar/robotflow/domain/config"
)

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent sets the maximum concurrent executions.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithCircuitBreakerThreshold sets the failure threshold for circuit breaker.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithRetry enables retries with the given attempts and initial delay.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryEnabled = true
		c.RetryMaxAttempts = attempts
		c.RetryInitialDelay = delay
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.DefaultTimeout = d
	}
}

// FromConfig maps the application resilience section onto executor
// settings, starting from base.
func FromConfig(base ExecutorConfig, rc config.ResilienceConfig) ExecutorConfig {
	if rc.Timeout > 0 {
		base.DefaultTimeout = rc.Timeout.Duration()
	}
	if rc.Bulkhead.Enabled {
		base.MaxConcurrent = rc.Bulkhead.MaxConcurrent
	}
	if rc.CircuitBreaker.Enabled {
		base.CircuitBreakerThreshold = rc.CircuitBreaker.Threshold
		if rc.CircuitBreaker.Timeout > 0 {
			base.CircuitBreakerTimeout = rc.CircuitBreaker.Timeout.Duration()
		}
	}
	if rc.Retry.Enabled {
		base.RetryEnabled = true
		base.RetryMaxAttempts = rc.Retry.MaxAttempts
		if rc.Retry.InitialDelay > 0 {
			base.RetryInitialDelay = rc.Retry.InitialDelay.Duration()
		}
		if rc.Retry.Multiplier > 0 {
			base.RetryBackoffMultiplier = rc.Retry.Multiplier
		}
	}
	return base
}

// NewExecutorWithOptions creates an executor with the given options.
func NewExecutorWithOptions[T any](opts ...Option) *Executor[T] {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor[T](config)
}
