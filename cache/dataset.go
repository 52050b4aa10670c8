package cache

import (
	"context"

	"github.com/strata-db/strata/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultDatasetCacheSize bounds the number of cached table handles.
const DefaultDatasetCacheSize = 32

// DatasetCache caches opened table handles keyed by table name, avoiding
// repeated open cost. Handles are non-owning references; eviction does not
// close them. Entries are invalidated on schema change or explicit close.
type DatasetCache struct {
	inner *Cache[string, storage.Table]
	group singleflight.Group
}

// NewDatasetCache creates a DatasetCache. Non-positive maxSize falls back
// to the default.
func NewDatasetCache(maxSize int) *DatasetCache {
	if maxSize <= 0 {
		maxSize = DefaultDatasetCacheSize
	}
	return &DatasetCache{inner: New[string, storage.Table](maxSize, 0)}
}

// GetOrOpen returns the cached handle for name, opening it with open on a
// miss. Concurrent opens of the same table are collapsed into one call.
// A failed open is returned to every waiter and nothing is cached.
func (c *DatasetCache) GetOrOpen(ctx context.Context, name string, open func(ctx context.Context) (storage.Table, error)) (storage.Table, error) {
	if table, ok := c.inner.Get(name); ok {
		return table, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have populated it.
		if table, ok := c.inner.Get(name); ok {
			return table, nil
		}
		table, err := open(ctx)
		if err != nil {
			return nil, err
		}
		c.inner.Put(name, table)
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(storage.Table), nil
}

// Invalidate drops the cached handle for name. Callers holding the handle
// keep a valid reference; only future lookups are affected.
func (c *DatasetCache) Invalidate(name string) {
	c.inner.Invalidate(name)
}

// Purge drops every cached handle.
func (c *DatasetCache) Purge() {
	c.inner.Purge()
}

// Len reports the number of cached handles.
func (c *DatasetCache) Len() int {
	return c.inner.Len()
}
