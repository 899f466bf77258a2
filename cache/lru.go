package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ZaguanLabs/nmtflow"
)

// DefaultCapacity is the number of entries an LRUCache holds by default.
const DefaultCapacity = 1024

// LRUConfig holds configuration for the in-memory cache.
type LRUConfig struct {
	Capacity int           // Maximum entries (default: 1024)
	TTL      time.Duration // Entry lifetime, 0 for none
}

// store is the subset of the golang-lru caches the LRUCache uses.
type store interface {
	Add(key, value string) bool
	Get(key string) (string, bool)
	Peek(key string) (string, bool)
	Keys() []string
	Len() int
	Purge()
}

// LRUCache is a bounded in-memory cache with strict least-recently-used
// eviction. Get and Put both refresh an entry's recency.
type LRUCache struct {
	mu       sync.Mutex // serializes Clear
	entries  store
	capacity int
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewLRUCache creates an in-memory cache.
func NewLRUCache(cfg LRUConfig) (*LRUCache, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &LRUCache{capacity: capacity}
	if cfg.TTL > 0 {
		c.entries = expirable.NewLRU[string, string](capacity, nil, cfg.TTL)
		return c, nil
	}

	entries, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	c.entries = entries
	return c, nil
}

// Get returns the translation of text in the direction scope.
func (c *LRUCache) Get(direction, text string) (string, bool) {
	v, ok := c.entries.Get(nmtflow.CacheKey(direction, text))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores a translation, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache) Put(direction, text, translation string) {
	c.entries.Add(nmtflow.CacheKey(direction, text), translation)
}

// Clear removes every entry, resets the counters and returns how many
// entries were removed.
func (c *LRUCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.entries.Len()
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	return n
}

// Stats reports size, capacity and hit counters.
func (c *LRUCache) Stats() nmtflow.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return nmtflow.CacheStats{
		Size:     c.entries.Len(),
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		HitRate:  hitRate(hits, misses),
	}
}

// Len returns the number of cached entries.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// Entries returns the cached entries from least to most recently used
// without touching their recency.
func (c *LRUCache) Entries() []Entry {
	keys := c.entries.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		scope, text := splitKey(k)
		out = append(out, Entry{Scope: scope, Text: text, Value: v})
	}
	return out
}

var (
	_ TranslationCache = (*LRUCache)(nil)
	_ ExportableCache  = (*LRUCache)(nil)
)
