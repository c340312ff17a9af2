package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/config"
)

func TestDefaultExecutorConfig(t *testing.T) {
	cfg := DefaultExecutorConfig()

	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", cfg.MaxConcurrent)
	}
	if cfg.RetryEnabled {
		t.Error("robot link retries should be off by default")
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.DefaultTimeout)
	}
	if !ModelExecutorConfig().RetryEnabled {
		t.Error("model calls should retry")
	}
}

func TestExecutor_Success(t *testing.T) {
	e := NewExecutor[string](DefaultExecutorConfig())

	got, err := e.Execute(context.Background(), func(context.Context) (string, error) {
		return "OK", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != "OK" {
		t.Errorf("Execute() = %q, want OK", got)
	}
}

func TestExecutor_NoRetryByDefault(t *testing.T) {
	e := NewExecutor[int](DefaultExecutorConfig())

	var calls atomic.Int32
	_, err := e.Execute(context.Background(), func(context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("robot busy")
	})
	if err == nil {
		t.Fatal("Execute() should return error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_RetriesWhenEnabled(t *testing.T) {
	e := NewExecutorWithOptions[int](WithRetry(3, time.Millisecond))

	var calls atomic.Int32
	got, err := e.Execute(context.Background(), func(context.Context) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != 42 || calls.Load() != 3 {
		t.Errorf("got %d after %d calls", got, calls.Load())
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutorWithOptions[int](WithTimeout(50 * time.Millisecond))

	_, err := e.Execute(context.Background(), func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return 1, nil
		}
	})
	if err == nil {
		t.Error("Execute() should return error on timeout")
	}
}

func TestExecutor_CircuitBreakerState(t *testing.T) {
	e := NewExecutor[int](DefaultExecutorConfig())
	if state := e.CircuitBreakerState(); state.String() != "closed" {
		t.Errorf("initial CircuitBreakerState() = %v, want closed", state)
	}
}

func TestFromConfig(t *testing.T) {
	rc := config.ResilienceConfig{
		Timeout:        config.Duration(5 * time.Second),
		Bulkhead:       config.BulkheadConfig{Enabled: true, MaxConcurrent: 2},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, Threshold: 7},
		Retry:          config.RetryConfig{Enabled: true, MaxAttempts: 4, Multiplier: 1.5},
	}

	got := FromConfig(DefaultExecutorConfig(), rc)
	if got.DefaultTimeout != 5*time.Second {
		t.Errorf("DefaultTimeout = %v", got.DefaultTimeout)
	}
	if got.MaxConcurrent != 2 || got.CircuitBreakerThreshold != 7 {
		t.Errorf("bulkhead/breaker = %d/%d", got.MaxConcurrent, got.CircuitBreakerThreshold)
	}
	if !got.RetryEnabled || got.RetryMaxAttempts != 4 || got.RetryBackoffMultiplier != 1.5 {
		t.Errorf("retry = %+v", got)
	}

	untouched := FromConfig(DefaultExecutorConfig(), config.ResilienceConfig{})
	if untouched != DefaultExecutorConfig() {
		t.Errorf("empty section should keep defaults, got %+v", untouched)
	}
}
