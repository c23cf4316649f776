// Package cache provides the result cache fronting expensive provider
// calls. Entries are immutable once set and overwritten only by a fresh
// fetch after expiry.
package cache

import (
	"context"
	"strings"
	"time"
)

// TTL classes used by the provider layer. Existence checks are cheap to
// redo, so they expire fast; updated-issue results hold for the polling
// lookback window; timelines sit in between.
const (
	TTLExistence = 60 * time.Second
	TTLUpdates   = time.Hour
	TTLTimeline  = 5 * time.Minute
)

// Cache is a TTL-keyed byte store safe for concurrent use.
// Later writers win on concurrent Set for the same key.
type Cache interface {
	// Get returns the cached value for key and whether it was present
	// and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for the given TTL, replacing any
	// existing entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key builds a cache key following the
// {provider}:{owner}:{repo}[:{issue}]:{operation} schema. Tokens never
// participate in keys, so results are shared across subscribers of the
// same repository.
func Key(provider, owner, repo string, parts ...string) string {
	elems := make([]string, 0, 3+len(parts))
	elems = append(elems, provider, owner, repo)
	elems = append(elems, parts...)
	return strings.Join(elems, ":")
}
