package rest

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// CacheKey represents a unique key for caching search results
type CacheKey string

// LRUCache implements a thread-safe LRU (Least Recently Used) cache
type LRUCache struct {
	capacity int
	ttl      time.Duration // Time-to-live for cache entries

	mu    sync.RWMutex
	cache map[CacheKey]*list.Element
	lru   *list.List

	hits   int64
	misses int64
}

type cacheEntry struct {
	key       CacheKey
	value     interface{}
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the given capacity
// capacity: maximum number of items to store
// ttl: time-to-live for entries (0 = no expiration)
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[CacheKey]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get retrieves a value from the cache
func (c *LRUCache) Get(key CacheKey) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[key]
	if !exists {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)

	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}

	c.lru.MoveToFront(elem)
	c.hits++

	return entry.value, true
}

// Put adds or updates a value in the cache
func (c *LRUCache) Put(key CacheKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		if c.ttl > 0 {
			entry.expiresAt = time.Now().Add(c.ttl)
		}
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{key: key, value: value}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		c.evictOldest()
	}
}

// Invalidate removes a specific key from the cache
func (c *LRUCache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[key]; exists {
		c.removeElement(elem)
	}
}

// Clear removes all entries from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[CacheKey]*list.Element, c.capacity)
	c.lru.Init()
	c.hits = 0
	c.misses = 0
}

// Size returns the current number of items in the cache
func (c *LRUCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *LRUCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    c.lru.Len(),
		HitRate: hitRate,
	}
}

func (c *LRUCache) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.cache, entry.key)
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits    int64
	Misses  int64
	Size    int
	HitRate float64
}

// SearchResult is the cached shape of one Search or RangeSearch response,
// distinct from the engine's own node cache (C5's warm_cache/bfs_cache),
// this caches whole query responses at the HTTP front door.
type SearchResult struct {
	IDs   []uint64
	Dists []float32
}

// QueryCache wraps an LRU cache specifically for search query results
type QueryCache struct {
	cache *LRUCache
}

// NewQueryCache creates a new query result cache
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		cache: NewLRUCache(capacity, ttl),
	}
}

// GenerateSearchKey creates a cache key for a beam search query.
func GenerateSearchKey(query []float32, k, l, beamWidth, ioLimit int, reorder bool) CacheKey {
	h := sha256.New()
	for _, v := range query {
		binary.Write(h, binary.LittleEndian, math.Float32bits(v))
	}
	binary.Write(h, binary.LittleEndian, int32(k))
	binary.Write(h, binary.LittleEndian, int32(l))
	binary.Write(h, binary.LittleEndian, int32(beamWidth))
	binary.Write(h, binary.LittleEndian, int32(ioLimit))
	reorderByte := byte(0)
	if reorder {
		reorderByte = 1
	}
	h.Write([]byte{reorderByte})
	return CacheKey(fmt.Sprintf("search:%x", h.Sum(nil)[:16]))
}

// GenerateRangeSearchKey creates a cache key for a range search query.
func GenerateRangeSearchKey(query []float32, radius float32, lMin, lMax, maxResults, beamWidth int) CacheKey {
	h := sha256.New()
	for _, v := range query {
		binary.Write(h, binary.LittleEndian, math.Float32bits(v))
	}
	binary.Write(h, binary.LittleEndian, math.Float32bits(radius))
	binary.Write(h, binary.LittleEndian, int32(lMin))
	binary.Write(h, binary.LittleEndian, int32(lMax))
	binary.Write(h, binary.LittleEndian, int32(maxResults))
	binary.Write(h, binary.LittleEndian, int32(beamWidth))
	return CacheKey(fmt.Sprintf("range:%x", h.Sum(nil)[:16]))
}

// GetSearchResult retrieves a cached search result
func (qc *QueryCache) GetSearchResult(key CacheKey) (SearchResult, bool) {
	value, found := qc.cache.Get(key)
	if !found {
		return SearchResult{}, false
	}
	result, ok := value.(SearchResult)
	if !ok {
		qc.cache.Invalidate(key)
		return SearchResult{}, false
	}
	return result, true
}

// PutSearchResult stores a search result in the cache
func (qc *QueryCache) PutSearchResult(key CacheKey, result SearchResult) {
	qc.cache.Put(key, result)
}

// Clear removes all cached results
func (qc *QueryCache) Clear() {
	qc.cache.Clear()
}

// Stats returns cache statistics
func (qc *QueryCache) Stats() CacheStats {
	return qc.cache.Stats()
}

// Size returns the number of cached entries
func (qc *QueryCache) Size() int {
	return qc.cache.Size()
}
