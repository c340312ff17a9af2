// Package cache provides the domain interface for caching knowledge graph
// query answers.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Cache is a byte cache with per-entry expiry.
// Implementations exist for memory, Redis, Badger and DynamoDB.
type Cache interface {
	// Get retrieves a cached value by key.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached entry by key.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from the cache.
	Clear(ctx context.Context) error
}

// Stats provides cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// StatsProvider is an optional interface for caches that support statistics.
type StatsProvider interface {
	Stats() Stats
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return "kg:" + strings.Join(parts, ":")
}

// GetJSON reads and decodes a cached value.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var zero T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		// A value that no longer decodes is treated as a miss.
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON encodes and stores a value.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
