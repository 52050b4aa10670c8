package cache

import (
	"github.com/dgraph-io/ristretto/v2"
)

const (
	// DefaultScoreCacheBytes bounds the memoized score entries.
	DefaultScoreCacheBytes = 8 << 20

	scoreEntryCost   = 16 // key + value + bookkeeping, approximate
	scoreBufferItems = 64
)

// ScoreCache memoizes per-record scoring work keyed by a 64-bit fingerprint
// of (scoring inputs, record). It is purely an accelerator: admission is
// probabilistic, writes are asynchronous, and a miss always recomputes.
type ScoreCache struct {
	cache *ristretto.Cache[uint64, float32]
}

// NewScoreCache creates a ScoreCache bounded by maxBytes. Non-positive
// maxBytes falls back to the default.
func NewScoreCache(maxBytes int64) (*ScoreCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultScoreCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, float32]{
		NumCounters: 10 * maxBytes / scoreEntryCost,
		MaxCost:     maxBytes,
		BufferItems: scoreBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &ScoreCache{cache: cache}, nil
}

// Get returns the memoized score for key.
func (c *ScoreCache) Get(key uint64) (float32, bool) {
	return c.cache.Get(key)
}

// Put memoizes a score. The write is buffered and may be dropped by the
// admission policy; callers must not rely on a subsequent hit.
func (c *ScoreCache) Put(key uint64, score float32) {
	c.cache.Set(key, score, scoreEntryCost)
}

// Wait blocks until buffered writes are applied. Intended for tests.
func (c *ScoreCache) Wait() {
	c.cache.Wait()
}

// Purge removes every memoized score.
func (c *ScoreCache) Purge() {
	c.cache.Clear()
}

// Close releases the cache's background resources.
func (c *ScoreCache) Close() {
	c.cache.Close()
}
