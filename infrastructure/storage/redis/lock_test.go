package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/robotflow/infrastructure/distributed/lock"
)

func TestLock_prefixKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		keyPrefix string
		key       string
		expected  string
	}{
		{"default prefix", "robotflow:", lock.CellKey("cell-a"), "robotflow:lock:cell:cell-a:execution"},
		{"empty prefix", "", "k", "lock:k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := NewLockFromClient(nil, tt.keyPrefix)
			if got := l.prefixKey(tt.key); got != tt.expected {
				t.Errorf("prefixKey(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}
}

func TestLock_TokensAreUnique(t *testing.T) {
	t.Parallel()

	a := NewLockFromClient(nil, "")
	b := NewLockFromClient(nil, "")
	if a.token == "" || a.token == b.token {
		t.Errorf("tokens = %q, %q; want distinct non-empty", a.token, b.token)
	}
}

func TestLock_RejectsInvalidTTL(t *testing.T) {
	t.Parallel()

	l := NewLockFromClient(nil, "test:")
	if _, err := l.Acquire(context.Background(), "k", 0); !errors.Is(err, lock.ErrInvalidTTL) {
		t.Errorf("Acquire() error = %v, want ErrInvalidTTL", err)
	}
	if err := l.Extend(context.Background(), "k", -time.Second); !errors.Is(err, lock.ErrInvalidTTL) {
		t.Errorf("Extend() error = %v, want ErrInvalidTTL", err)
	}
}

func TestLock_ContextCancellation(t *testing.T) {
	t.Parallel()

	l := NewLockFromClient(nil, "test:")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Acquire(ctx, "k", time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestLock_CloseBorrowedClient(t *testing.T) {
	t.Parallel()

	if err := NewLockFromClient(nil, "").Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
