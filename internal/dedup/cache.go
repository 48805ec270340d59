package dedup

import (
	"container/list"
	"sync"
)

// SimilarityCache is a bounded key -> embedding store with LRU eviction.
// Safe for concurrent use; one cache is constructed per pipeline and passed
// into the deduplicator, never held as package state.
type SimilarityCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key    string
	vector []float32
}

const defaultCacheCapacity = 2048

// NewSimilarityCache creates a cache holding at most capacity vectors.
// A non-positive capacity falls back to the default.
func NewSimilarityCache(capacity int) *SimilarityCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &SimilarityCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached vector for key, marking it recently used.
func (c *SimilarityCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).vector, true
}

// Put stores a vector under key, evicting the least recently used entry
// when the cache is full.
func (c *SimilarityCache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, vector: vector})
}

// Len returns the current number of cached vectors.
func (c *SimilarityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
