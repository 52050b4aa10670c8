package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded, time-bounded key-value cache with least-recently-used
// eviction and optional TTL expiry. A zero ttl disables expiry. Expired
// entries are removed lazily on access. All methods are safe for concurrent
// use.
type Cache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// New creates a Cache holding at most maxSize entries. Entries older than
// ttl are treated as absent; ttl <= 0 means entries never expire.
func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		lru: expirable.NewLRU[K, V](maxSize, nil, ttl),
	}
}

// Get returns the value for k if present and not expired, refreshing its
// recency.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	return c.lru.Get(k)
}

// Put inserts or refreshes k, evicting the least-recently-used entry when
// the cache is over capacity.
func (c *Cache[K, V]) Put(k K, v V) {
	c.lru.Add(k, v)
}

// Invalidate removes k unconditionally.
func (c *Cache[K, V]) Invalidate(k K) {
	c.lru.Remove(k)
}

// Purge removes every entry.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}

// Len reports the number of live entries, including any not yet lazily expired.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
