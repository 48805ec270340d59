package overlap

import (
	"sync"
	"time"

	"github.com/kamilvitek/oslavu-engine/internal/models"
)

// Key identifies a cached base prediction. Predictions are cached by
// category pair only: dates, venues and attendance are applied as
// post-cache adjustments on every read.
type Key struct {
	Cat1 string
	Sub1 string
	Cat2 string
	Sub2 string
}

// Cache stores base overlap predictions with a TTL. Safe for concurrent use;
// constructed once per pipeline, never package state.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[Key]cacheItem
	now     func() time.Time
}

type cacheItem struct {
	prediction models.OverlapPrediction
	expiresAt  time.Time
}

const defaultTTL = 24 * time.Hour

// NewCache creates a prediction cache. A non-positive ttl falls back to the
// default of 24 hours.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[Key]cacheItem),
		now:     time.Now,
	}
}

// Get returns the cached base prediction for key if present and fresh.
func (c *Cache) Get(key Key) (models.OverlapPrediction, bool) {
	c.mu.RLock()
	item, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return models.OverlapPrediction{}, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry.
		if item, ok = c.entries[key]; ok && c.now().After(item.expiresAt) {
			delete(c.entries, key)
			ok = false
		}
		c.mu.Unlock()
		if !ok {
			return models.OverlapPrediction{}, false
		}
	}
	return item.prediction, true
}

// Put stores a base prediction for key.
func (c *Cache) Put(key Key, prediction models.OverlapPrediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheItem{
		prediction: prediction,
		expiresAt:  c.now().Add(c.ttl),
	}
}

// Len returns the number of cached entries, including expired ones not yet
// swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
