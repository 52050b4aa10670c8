package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultStructureCacheBytes bounds the total in-memory size of cached
// index structures.
const DefaultStructureCacheBytes = 256 << 20

// Structure is a loaded in-memory structure (an index graph, partition set
// or similar) shared by reference among concurrent readers. Implementations
// that support mutation must guard it with their own read-write lock; the
// cache's bookkeeping lock covers only cache state.
type Structure interface {
	// SizeBytes approximates the structure's resident size, used for the
	// cache's byte budget.
	SizeBytes() int
}

// StructureCache keeps loaded structures in memory keyed by their source
// path, sharing one instance across all callers. Eviction is LRU under a
// byte budget. Entries are invalidated explicitly on write-back to their
// source path, never by TTL; a write-back without a matching invalidation
// is a correctness bug in the caller. Evicted or invalidated structures
// remain alive for callers still holding them; the cache stores shared
// references, not copies.
type StructureCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, Structure]
	group    singleflight.Group
	maxBytes int
	bytes    int
}

// NewStructureCache creates a StructureCache bounded by maxBytes.
// Non-positive maxBytes falls back to the default.
func NewStructureCache(maxBytes int) *StructureCache {
	if maxBytes <= 0 {
		maxBytes = DefaultStructureCacheBytes
	}
	c := &StructureCache{maxBytes: maxBytes}
	// Entry-count cap is a backstop; the byte budget is what evicts in practice.
	inner, err := lru.NewWithEvict[string, Structure](4096, func(_ string, v Structure) {
		c.bytes -= v.SizeBytes()
	})
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}
	c.lru = inner
	return c
}

// Get returns the cached structure for path, if present.
func (c *StructureCache) Get(path string) (Structure, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(path)
}

// GetOrLoad returns the structure for path, loading it with load on a miss.
// Concurrent loads of the same path are collapsed into one call. A failed
// load is returned to every waiter and nothing is cached.
func (c *StructureCache) GetOrLoad(ctx context.Context, path string, load func(ctx context.Context) (Structure, error)) (Structure, error) {
	if s, ok := c.Get(path); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if s, ok := c.Get(path); ok {
			return s, nil
		}
		s, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(path, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Structure), nil
}

// Put caches a structure for path, evicting least-recently-used entries
// until the byte budget holds. A structure larger than the whole budget is
// admitted alone; the budget then evicts it on the next insert.
func (c *StructureCache) Put(path string, s Structure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(path); ok {
		c.bytes -= old.SizeBytes()
	}
	c.bytes += s.SizeBytes()
	c.lru.Add(path, s)

	for c.bytes > c.maxBytes && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
	}
}

// Invalidate removes the structure for path. Called after every write-back
// to that path so no stale in-memory structure outlives its source.
func (c *StructureCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(path)
}

// Purge removes every cached structure.
func (c *StructureCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes = 0
}

// Len reports the number of cached structures.
func (c *StructureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes reports the tracked resident size of all cached structures.
func (c *StructureCache) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
