package cache

import (
	"time"
)

// Manager owns the engine's four cache layers. It is constructed once at
// the service root and passed by shared reference into the index manager
// and search engine; there are no process-wide cache globals. Close flushes
// every layer.
type Manager struct {
	Datasets   *DatasetCache
	Structures *StructureCache
	Results    *ResultCache
	Scores     *ScoreCache
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	datasetCacheSize int
	structureBytes   int
	resultCacheSize  int
	resultCacheTTL   time.Duration
	scoreCacheBytes  int64
}

// WithDatasetCacheSize bounds the number of cached table handles.
func WithDatasetCacheSize(size int) ManagerOption {
	return func(o *managerOptions) {
		o.datasetCacheSize = size
	}
}

// WithStructureCacheBytes bounds the resident size of cached index structures.
func WithStructureCacheBytes(maxBytes int) ManagerOption {
	return func(o *managerOptions) {
		o.structureBytes = maxBytes
	}
}

// WithResultCache sets the search result cache capacity and TTL.
func WithResultCache(maxSize int, ttl time.Duration) ManagerOption {
	return func(o *managerOptions) {
		o.resultCacheSize = maxSize
		o.resultCacheTTL = ttl
	}
}

// WithScoreCacheBytes bounds the memoized score cache.
func WithScoreCacheBytes(maxBytes int64) ManagerOption {
	return func(o *managerOptions) {
		o.scoreCacheBytes = maxBytes
	}
}

// NewManager creates a Manager with all four cache layers.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}

	scores, err := NewScoreCache(options.scoreCacheBytes)
	if err != nil {
		return nil, err
	}

	return &Manager{
		Datasets:   NewDatasetCache(options.datasetCacheSize),
		Structures: NewStructureCache(options.structureBytes),
		Results:    NewResultCache(options.resultCacheSize, options.resultCacheTTL),
		Scores:     scores,
	}, nil
}

// Close flushes every cache layer and releases their resources.
func (m *Manager) Close() {
	m.Datasets.Purge()
	m.Structures.Purge()
	m.Results.Purge()
	m.Scores.Purge()
	m.Scores.Close()
}
