package cache

import (
	"time"

	"github.com/strata-db/strata/core"
)

const (
	// DefaultResultCacheSize bounds the number of cached result sets.
	DefaultResultCacheSize = 200
	// DefaultResultCacheTTL bounds result staleness. There is no explicit
	// invalidation path for search results; TTL is the only bound.
	DefaultResultCacheTTL = 300 * time.Second
)

// ResultCache caches ranked search results keyed by query fingerprint.
// Entries expire by TTL and are evicted LRU; writes to the underlying table
// do not invalidate them, so staleness is bounded purely by the TTL.
type ResultCache struct {
	inner *Cache[Fingerprint, []*core.SearchResult]
}

// NewResultCache creates a ResultCache. Non-positive maxSize or ttl fall
// back to the defaults.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = DefaultResultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultResultCacheTTL
	}
	return &ResultCache{inner: New[Fingerprint, []*core.SearchResult](maxSize, ttl)}
}

// Get returns the cached results for fp, if fresh.
func (c *ResultCache) Get(fp Fingerprint) ([]*core.SearchResult, bool) {
	return c.inner.Get(fp)
}

// Put caches results for fp.
func (c *ResultCache) Put(fp Fingerprint, results []*core.SearchResult) {
	c.inner.Put(fp, results)
}

// Purge removes every cached result set.
func (c *ResultCache) Purge() {
	c.inner.Purge()
}

// Len reports the number of cached result sets.
func (c *ResultCache) Len() int {
	return c.inner.Len()
}
