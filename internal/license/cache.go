package license

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ValidationCache holds recent validation results in memory. Fresh entries
// short-circuit the store; stale entries keep plugins usable through a store
// outage for up to the offline window.
type ValidationCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	clock   clockwork.Clock
}

type cacheEntry struct {
	validation Validation
	fetchedAt  time.Time
}

// NewValidationCache creates an empty cache using the given clock.
func NewValidationCache(clock clockwork.Clock) *ValidationCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ValidationCache{
		entries: make(map[string]cacheEntry),
		clock:   clock,
	}
}

func cacheKey(tenantID, pluginID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", tenantID, pluginID)
}

// Put stores a validation result.
func (c *ValidationCache) Put(tenantID, pluginID uuid.UUID, v Validation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(tenantID, pluginID)] = cacheEntry{
		validation: v,
		fetchedAt:  c.clock.Now(),
	}
}

// GetFresh returns a cached validation no older than maxAge.
func (c *ValidationCache) GetFresh(tenantID, pluginID uuid.UUID, maxAge time.Duration) (Validation, bool) {
	return c.get(tenantID, pluginID, maxAge, false)
}

// GetStale returns a cached validation no older than the offline window,
// marked as stale.
func (c *ValidationCache) GetStale(tenantID, pluginID uuid.UUID, offlineWindow time.Duration) (Validation, bool) {
	return c.get(tenantID, pluginID, offlineWindow, true)
}

func (c *ValidationCache) get(tenantID, pluginID uuid.UUID, maxAge time.Duration, stale bool) (Validation, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(tenantID, pluginID)]
	c.mu.RUnlock()

	if !ok || c.clock.Since(entry.fetchedAt) > maxAge {
		return Validation{}, false
	}

	v := entry.validation
	v.Stale = stale
	return v, true
}

// Invalidate drops the cached result for a tenant/plugin pair.
func (c *ValidationCache) Invalidate(tenantID, pluginID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(tenantID, pluginID))
}
