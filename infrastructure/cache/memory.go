// Package cache holds the facet cache implementations.
package cache

import (
	"context"
	"sync"
	"time"

	"kbquery/application/ports"
	"kbquery/domain/graph"
)

// InMemoryFacetCache keeps facets per scope key in a process-wide map.
// Concurrent misses on the same key may compute twice; the last Set wins.
type InMemoryFacetCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	clock ports.Clock
}

type cacheItem struct {
	value     *graph.Facets
	expiresAt time.Time
}

// NewInMemoryFacetCache creates a new in-memory cache. A nil clock reads
// the wall clock.
func NewInMemoryFacetCache(clock ports.Clock) *InMemoryFacetCache {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &InMemoryFacetCache{
		items: make(map[string]cacheItem),
		clock: clock,
	}
}

// Get retrieves unexpired facets for key
func (c *InMemoryFacetCache) Get(ctx context.Context, key string) (*graph.Facets, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || !c.clock.Now().Before(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

// Set stores facets until now + ttl
func (c *InMemoryFacetCache) Set(ctx context.Context, key string, facets *graph.Facets, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem{
		value:     facets,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *InMemoryFacetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all values from cache
func (c *InMemoryFacetCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem)
}

// PurgeExpired drops every expired entry and returns how many were removed
func (c *InMemoryFacetCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// RunJanitor purges expired entries every interval until ctx is done
func (c *InMemoryFacetCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PurgeExpired()
		}
	}
}
