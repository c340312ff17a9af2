package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLockStore is the lock table shared by the MemoryLocks of one
// process.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewMemoryLockStore creates a new shared lock store.
func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{
		locks: make(map[string]*lockEntry),
	}
}

type lockEntry struct {
	holderID  string
	expiresAt time.Time
}

// MemoryLock implements Lock for a single process, where the chat loop
// and other engines built from the same runtime share one cell.
type MemoryLock struct {
	store    *MemoryLockStore
	holderID string
}

// MemoryLockOption configures the memory lock.
type MemoryLockOption func(*MemoryLock)

// WithHolderID sets the holder ID for this locker.
func WithHolderID(id string) MemoryLockOption {
	return func(l *MemoryLock) {
		l.holderID = id
	}
}

// WithStore sets a shared lock store.
func WithStore(store *MemoryLockStore) MemoryLockOption {
	return func(l *MemoryLock) {
		l.store = store
	}
}

// NewMemoryLock creates a new in-memory lock.
func NewMemoryLock(opts ...MemoryLockOption) *MemoryLock {
	l := &MemoryLock{
		store:    NewMemoryLockStore(),
		holderID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ID returns the holder id of this lock.
func (l *MemoryLock) ID() string {
	return l.holderID
}

// Acquire attempts to acquire the lock.
func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	now := time.Now()
	if entry, exists := l.store.locks[key]; exists {
		if entry.expiresAt.After(now) && entry.holderID != l.holderID {
			return false, nil
		}
	}

	l.store.locks[key] = &lockEntry{
		holderID:  l.holderID,
		expiresAt: now.Add(ttl),
	}
	return true, nil
}

// Release releases the lock.
func (l *MemoryLock) Release(_ context.Context, key string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	entry, exists := l.store.locks[key]
	if !exists || entry.holderID != l.holderID {
		return ErrLockNotHeld
	}

	delete(l.store.locks, key)
	return nil
}

// Extend extends the TTL of a held lock.
func (l *MemoryLock) Extend(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	entry, exists := l.store.locks[key]
	if !exists || entry.holderID != l.holderID {
		return ErrLockNotHeld
	}

	now := time.Now()
	if entry.expiresAt.Before(now) {
		return ErrLockExpired
	}

	entry.expiresAt = now.Add(ttl)
	return nil
}

// IsHeld reports whether anyone holds an unexpired lock on key.
func (l *MemoryLock) IsHeld(key string) bool {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	entry, exists := l.store.locks[key]
	return exists && entry.expiresAt.After(time.Now())
}
