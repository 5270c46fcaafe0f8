package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

// Entry is a key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a key-value store with per-key TTL expiry. It is the substrate for
// the cache-aside layer, the rate limiter, the session cache and feature
// flags. Increment must be atomic per key; the rate limiter's correctness
// depends entirely on that guarantee.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound if absent/expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Scan returns all live entries whose key starts with prefix.
	Scan(ctx context.Context, prefix string) ([]Entry, error)

	// Increment atomically adds 1 to the counter at key and returns the new
	// count along with the window's expiry time. The first increment of an
	// absent key creates it with the given ttl; later increments within the
	// window preserve the original expiry.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error)

	// Close releases the store's resources.
	Close() error
}
