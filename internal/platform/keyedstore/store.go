// Package keyedstore provides a keyed value store with per-key TTLs. The
// in-memory implementation serves single-process deployments; the Redis
// implementation centralizes the same state for multi-process deployments so
// attempt counters and session grants are shared across instances.
package keyedstore

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("keyedstore: miss")

// Store is a keyed value store with TTLs. Incr is atomic with respect to
// concurrent callers for the same key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Incr increments the counter at key and returns the new value. The TTL
	// is applied when the counter is created; later increments within the
	// window do not extend it.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// AddToSet adds member to the set at key, refreshing the set's TTL.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	// InSet reports whether member is in the set at key.
	InSet(ctx context.Context, key, member string) (bool, error)
}
