package cache

import (
	"context"
	"sync"
	"time"
)

// Clock provides time operations for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// memoryEntry is one stored value with its expiry deadline.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a thread-safe in-memory Cache implementation.
//
// It bounds memory growth with a maximum entry count: when the limit is
// reached, expired entries are swept first and, if the store is still
// full, the entry closest to expiry is evicted. The store is optimized
// for read-heavy workloads using sync.RWMutex.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
	clock      Clock
}

// MemoryCacheConfig holds configuration for MemoryCache.
type MemoryCacheConfig struct {
	// MaxEntries is the maximum number of entries held in memory.
	// Default: 10000
	MaxEntries int

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock
}

// NewMemoryCache creates a new in-memory cache with the given configuration.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: config.MaxEntries,
		clock:      config.Clock,
	}
}

// Get implements Cache.Get. Expired entries read as absent; they are
// physically removed on the next Set sweep.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache.Set with last-write-wins semantics.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}

	c.entries[key] = memoryEntry{
		value:     value,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLocked removes expired entries. Caller must hold the write lock.
func (c *MemoryCache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictSoonestLocked removes the entry closest to expiry to make room.
// Caller must hold the write lock.
func (c *MemoryCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.expiresAt.Before(soonest) {
			victim = key
			soonest = entry.expiresAt
			first = false
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}
