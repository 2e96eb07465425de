// Package cache holds the entitlement snapshot caches. The snapshot is never
// authoritative: a miss, an expired entry or a cache failure is resolved by
// recomputing from the subscription table.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"vega/internal/types"
)

// sweepEvery is the number of writes between expired-entry sweeps.
const sweepEvery = 256

// MemoryEntitlementCache is a process-local TTL cache. Staleness across
// instances is bounded by the TTL.
//
// Every Delete and Clear takes the next value of a counter. A user's
// generation is the later of their last Delete and the last Clear.
type MemoryEntitlementCache struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	gens      map[string]uint64
	counter   uint64
	clearedAt uint64
	ttl       time.Duration
	now       func() time.Time
	writes    int
}

type memoryEntry struct {
	value     types.Entitlement
	expiresAt time.Time
}

// NewMemoryEntitlementCache creates an empty cache whose entries live ttl.
func NewMemoryEntitlementCache(ttl time.Duration) *MemoryEntitlementCache {
	return &MemoryEntitlementCache{
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the cached snapshot. Expired entries count as misses
// and are left for the next Set or Delete to replace.
func (c *MemoryEntitlementCache) Get(_ context.Context, userID string) (*types.Entitlement, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	v := e.value
	return &v, true, nil
}

// Generation implements the entitlement cache.
func (c *MemoryEntitlementCache) Generation(_ context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation(userID), nil
}

// Set stores a copy of e keyed by e.UserID unless the user was invalidated
// after gen was read.
func (c *MemoryEntitlementCache) Set(_ context.Context, e *types.Entitlement, gen string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation(e.UserID) != gen {
		return false, nil
	}
	now := c.now()
	c.entries[e.UserID] = memoryEntry{value: *e, expiresAt: now.Add(c.ttl)}
	c.writes++
	if c.writes%sweepEvery == 0 {
		c.evictExpired(now)
	}
	return true, nil
}

// Delete drops the user's entry and advances their generation.
func (c *MemoryEntitlementCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	c.counter++
	c.gens[userID] = c.counter
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

// Clear drops every entry and advances every generation.
func (c *MemoryEntitlementCache) Clear(context.Context) error {
	c.mu.Lock()
	c.counter++
	c.clearedAt = c.counter
	c.entries = make(map[string]memoryEntry)
	c.gens = make(map[string]uint64)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryEntitlementCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// generation must be called with mu held.
func (c *MemoryEntitlementCache) generation(userID string) string {
	return strconv.FormatUint(max(c.gens[userID], c.clearedAt), 10)
}

// evictExpired must be called with mu held.
func (c *MemoryEntitlementCache) evictExpired(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
