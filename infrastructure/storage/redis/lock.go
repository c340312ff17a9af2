package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/robotflow/infrastructure/distributed/lock"
)

// Release and extend compare the holder token before touching the key so a
// process never drops a lock that expired and was taken by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Lock is a Redis-backed cell execution lock shared by every process
// pointed at the same server.
type Lock struct {
	client    lockClient
	keyPrefix string
	token     string
	owned     *redis.Client
}

// NewLock connects to Redis and returns a lock with a fresh holder token.
func NewLock(cfg Config, opts ...ConfigOption) (*Lock, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	l := NewLockFromClient(client, cfg.KeyPrefix)
	l.owned = client
	return l, nil
}

// NewLockFromClient creates a lock on an existing client. The caller keeps
// ownership of the client.
func NewLockFromClient(client lockClient, keyPrefix string) *Lock {
	return &Lock{
		client:    client,
		keyPrefix: keyPrefix,
		token:     uuid.NewString(),
	}
}

func (l *Lock) prefixKey(key string) string {
	return l.keyPrefix + "lock:" + key
}

// Acquire sets the key if absent. A key already holding this lock's token
// is refreshed so the same holder can acquire again.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, lock.ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, err := l.client.SetNX(ctx, l.prefixKey(key), l.token, ttl).Result()
	if err != nil {
		return false, wrapError(err)
	}
	if ok {
		return true, nil
	}

	n, err := extendScript.Run(ctx, l.client, []string{l.prefixKey(key)}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, wrapError(err)
	}
	return n == 1, nil
}

// Release deletes the key if this lock still holds it.
func (l *Lock) Release(ctx context.Context, key string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefixKey(key)}, l.token).Int64()
	if err != nil {
		return wrapError(err)
	}
	if n == 0 {
		return lock.ErrLockNotHeld
	}
	return nil
}

// Extend resets the TTL if this lock still holds the key.
func (l *Lock) Extend(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return lock.ErrInvalidTTL
	}

	n, err := extendScript.Run(ctx, l.client, []string{l.prefixKey(key)}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return wrapError(err)
	}
	if n == 0 {
		return lock.ErrLockNotHeld
	}
	return nil
}

// Close closes the connection if NewLock opened it.
func (l *Lock) Close() error {
	if l.owned == nil {
		return nil
	}
	err := l.owned.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

var _ lock.Lock = (*Lock)(nil)
