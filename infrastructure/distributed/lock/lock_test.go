package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewMemoryLock()
	key := CellKey("cell-a")

	acquired, err := l.Acquire(ctx, key, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("Acquire() = %v, %v; want true, nil", acquired, err)
	}
	if !l.IsHeld(key) {
		t.Error("IsHeld() = false after Acquire")
	}

	// Reentrant for the same holder.
	acquired, err = l.Acquire(ctx, key, time.Minute)
	if err != nil || !acquired {
		t.Errorf("second Acquire() = %v, %v; want true, nil", acquired, err)
	}

	if err := l.Release(ctx, key); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if l.IsHeld(key) {
		t.Error("IsHeld() = true after Release")
	}
	if err := l.Release(ctx, key); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("second Release() error = %v, want ErrLockNotHeld", err)
	}
}

func TestMemoryLock_DifferentHolders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryLockStore()
	first := NewMemoryLock(WithStore(store), WithHolderID("first"))
	second := NewMemoryLock(WithStore(store), WithHolderID("second"))
	key := CellKey("cell-a")

	if ok, _ := first.Acquire(ctx, key, time.Minute); !ok {
		t.Fatal("first Acquire() = false")
	}
	if ok, err := second.Acquire(ctx, key, time.Minute); ok || err != nil {
		t.Errorf("second Acquire() = %v, %v; want false, nil", ok, err)
	}
	if err := second.Release(ctx, key); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Release() by non-holder error = %v, want ErrLockNotHeld", err)
	}
	if err := second.Extend(ctx, key, time.Minute); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Extend() by non-holder error = %v, want ErrLockNotHeld", err)
	}

	// Other cells are independent.
	if ok, _ := second.Acquire(ctx, CellKey("cell-b"), time.Minute); !ok {
		t.Error("Acquire() on another cell = false")
	}

	if err := first.Release(ctx, key); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if ok, _ := second.Acquire(ctx, key, time.Minute); !ok {
		t.Error("Acquire() after release = false")
	}
}

func TestMemoryLock_Expiration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryLockStore()
	first := NewMemoryLock(WithStore(store))
	second := NewMemoryLock(WithStore(store))
	key := CellKey("cell-a")

	if ok, _ := first.Acquire(ctx, key, 20*time.Millisecond); !ok {
		t.Fatal("Acquire() = false")
	}
	time.Sleep(40 * time.Millisecond)

	if err := first.Extend(ctx, key, time.Minute); !errors.Is(err, ErrLockExpired) {
		t.Errorf("Extend() after expiry error = %v, want ErrLockExpired", err)
	}
	if ok, _ := second.Acquire(ctx, key, time.Minute); !ok {
		t.Error("Acquire() of expired lock = false")
	}
}

func TestMemoryLock_Extend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryLockStore()
	holder := NewMemoryLock(WithStore(store))
	other := NewMemoryLock(WithStore(store))
	key := CellKey("cell-a")

	if ok, _ := holder.Acquire(ctx, key, 50*time.Millisecond); !ok {
		t.Fatal("Acquire() = false")
	}
	if err := holder.Extend(ctx, key, time.Minute); err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	if ok, _ := other.Acquire(ctx, key, time.Minute); ok {
		t.Error("Acquire() succeeded on an extended lock")
	}
}

func TestMemoryLock_InvalidTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{"zero", 0},
		{"negative", -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := NewMemoryLock()
			if _, err := l.Acquire(context.Background(), "k", tt.ttl); !errors.Is(err, ErrInvalidTTL) {
				t.Errorf("Acquire() error = %v, want ErrInvalidTTL", err)
			}
			if err := l.Extend(context.Background(), "k", tt.ttl); !errors.Is(err, ErrInvalidTTL) {
				t.Errorf("Extend() error = %v, want ErrInvalidTTL", err)
			}
		})
	}
}

func TestMemoryLock_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemoryLock().Acquire(ctx, "k", time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestMemoryLock_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryLockStore()
	key := CellKey("cell-a")

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := NewMemoryLock(WithStore(store)).Acquire(ctx, key, time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}

func TestAcquireWithRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryLockStore()
	holder := NewMemoryLock(WithStore(store))
	waiter := NewMemoryLock(WithStore(store))
	key := CellKey("cell-a")

	if ok, _ := holder.Acquire(ctx, key, time.Minute); !ok {
		t.Fatal("Acquire() = false")
	}

	ok, err := AcquireWithRetry(ctx, waiter, key, time.Minute, WithMaxRetries(2), WithRetryInterval(time.Millisecond))
	if ok || err != nil {
		t.Errorf("AcquireWithRetry() while held = %v, %v; want false, nil", ok, err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = holder.Release(ctx, key)
	}()
	ok, err = AcquireWithRetry(ctx, waiter, key, time.Minute, WithMaxRetries(100), WithRetryInterval(5*time.Millisecond))
	if !ok || err != nil {
		t.Errorf("AcquireWithRetry() after release = %v, %v; want true, nil", ok, err)
	}
}

func TestAcquireWithRetry_ContextCanceled(t *testing.T) {
	t.Parallel()

	store := NewMemoryLockStore()
	holder := NewMemoryLock(WithStore(store))
	waiter := NewMemoryLock(WithStore(store))
	key := CellKey("cell-a")

	if ok, _ := holder.Acquire(context.Background(), key, time.Minute); !ok {
		t.Fatal("Acquire() = false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := AcquireWithRetry(ctx, waiter, key, time.Minute, WithMaxRetries(1000), WithRetryInterval(5*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AcquireWithRetry() error = %v, want DeadlineExceeded", err)
	}
}
