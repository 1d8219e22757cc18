package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidTTL is returned when a write is attempted without a positive TTL
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)

// Store is the key-value backend used by the caching adapters.
//
// Values are opaque to the store. Implementations must make each write
// atomic: a reader sees either the previous value, the new value, or a miss.
type Store interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithExpiry stores value under key for ttl. The TTL is applied in
	// whole seconds.
	SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value []byte) error
}
