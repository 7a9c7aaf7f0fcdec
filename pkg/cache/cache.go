// Package cache provides the advisory cache used for schema snapshots,
// business rules and table lists. A cache failure is never fatal: callers
// log it and fall back to live computation.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value store with per-entry TTLs.
type Cache interface {
	// Get returns the cached value for key. A miss returns
	// apperrors.ErrNotFound; other errors indicate a cache outage.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes all keys matching a glob-style pattern,
	// e.g. "schema:a1b2:*".
	DeletePattern(ctx context.Context, pattern string) error
}
