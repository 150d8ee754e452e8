// Package cache is a TTL-bounded in-memory store of fused search responses.
// Eviction is lazy: a stale entry is dropped by the Get that finds it.
package cache

import (
	"sync"
	"time"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
	"github.com/kailas-cloud/fusegate/internal/metrics"
)

// Entry is a stored fused response. Entries are immutable once stored and
// replaced wholesale on overwrite.
type Entry struct {
	Items       []result.Result
	PerSourceMS map[string]int64
	TotalMS     int64
	Degraded    bool
	Code        domain.ResultCode

	storedAt time.Time
}

// Cache is a key-addressed TTL cache. A TTL <= 0 disables caching: every Get
// misses and Set is a no-op.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry
}

// New creates a cache.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for key if it is younger than the TTL. A stale entry
// counts as a miss and is evicted.
func (c *Cache) Get(key string, now time.Time) (Entry, bool) {
	if c.ttl <= 0 {
		return Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return Entry{}, false
	}
	if now.Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		metrics.CacheTotal.WithLabelValues("miss").Inc()
		return Entry{}, false
	}

	metrics.CacheTotal.WithLabelValues("hit").Inc()
	return e, true
}

// Set stores an entry, unconditionally replacing any prior entry for key.
func (c *Cache) Set(key string, e Entry, now time.Time) {
	if c.ttl <= 0 {
		return
	}

	e.storedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

// Len returns the number of stored entries, stale included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
