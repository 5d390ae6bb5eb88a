package cache

import (
	"sync"
	"time"

	"github.com/arklim/payroll-access/internal/core/domain"
	"github.com/arklim/payroll-access/internal/core/port"
)

// DefaultPermissionTTL bounds how long a resolved set may be served.
const DefaultPermissionTTL = 5 * time.Minute

type permissionEntry struct {
	permissions domain.PermissionSet
	expiresAt   time.Time
}

// PermissionCache is a process-local TTL cache of resolved permission sets.
//
// Invalidations draw from one counter: Invalidate stamps the user's key with
// the next value and InvalidateAll moves the floor shared by every key.
type PermissionCache struct {
	mu          sync.RWMutex
	entries     map[string]permissionEntry
	generations map[string]uint64
	floor       uint64
	seq         uint64
	ttl         time.Duration
	clock       func() time.Time
}

// NewPermissionCache constructs a cache; non-positive ttl falls back to DefaultPermissionTTL.
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultPermissionTTL
	}
	return &PermissionCache{
		entries:     make(map[string]permissionEntry),
		generations: make(map[string]uint64),
		ttl:         ttl,
		clock:       time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (c *PermissionCache) WithClock(clock func() time.Time) *PermissionCache {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Get returns the cached set while it is fresh. Expired entries are dropped.
func (c *PermissionCache) Get(userID string) (domain.PermissionSet, bool) {
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[userID]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, userID)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.permissions, true
}

// Generation returns the invalidation generation of userID.
func (c *PermissionCache) Generation(userID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generationLocked(userID)
}

func (c *PermissionCache) generationLocked(userID string) uint64 {
	if gen := c.generations[userID]; gen > c.floor {
		return gen
	}
	return c.floor
}

// SetIfGeneration stores a private copy of permissions unless userID was
// invalidated after generation was read.
func (c *PermissionCache) SetIfGeneration(userID string, permissions domain.PermissionSet, generation uint64) bool {
	entry := permissionEntry{
		permissions: permissions.Clone(),
		expiresAt:   c.clock().Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generationLocked(userID) != generation {
		return false
	}
	c.entries[userID] = entry
	return true
}

// Set stores permissions at the current generation.
func (c *PermissionCache) Set(userID string, permissions domain.PermissionSet) {
	c.SetIfGeneration(userID, permissions, c.Generation(userID))
}

// Invalidate drops the entry for userID and advances its generation.
func (c *PermissionCache) Invalidate(userID string) {
	c.mu.Lock()
	c.seq++
	c.generations[userID] = c.seq
	delete(c.entries, userID)
	c.mu.Unlock()
}

// InvalidateAll drops every entry and advances every generation.
func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	c.seq++
	c.floor = c.seq
	c.entries = make(map[string]permissionEntry)
	c.generations = make(map[string]uint64)
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or not.
func (c *PermissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ port.PermissionCache = (*PermissionCache)(nil)
