package cache

import "errors"

// Domain errors for cache operations.
var (
	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrConnectionFailed is returned when connection to the cache backend fails.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// ErrOperationTimeout is returned when a cache operation exceeds its deadline.
var ErrOperationTimeout = errors.New("cache operation timeout")
