package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

const (
	// overFetchFactor and overFetchFloor size the ANN candidate pool so
	// post-filtering can drop rows without starving the final page:
	// fetch_count = max(limit*2, limit+10).
	overFetchFactor = 2
	overFetchFloor  = 10

	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// Engine executes vector and hybrid searches over tables. It owns no
// tables itself; callers pass handles. Results and keyword scores are
// cached through the shared cache manager, and every cache layer degrades
// to recomputation on miss or failure.
type Engine struct {
	caches *cache.Manager
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a search engine backed by the given cache manager.
func NewEngine(caches *cache.Manager, opts ...Option) (*Engine, error) {
	if caches == nil {
		return nil, ErrCacheManagerRequired
	}

	e := &Engine{
		caches: caches,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// FetchCount computes the ANN over-fetch for a requested limit.
func FetchCount(limit int) int {
	if doubled := limit * overFetchFactor; doubled > limit+overFetchFloor {
		return doubled
	}
	return limit + overFetchFloor
}

// Search runs a vector similarity query and applies opts as a post-filter,
// preserving similarity order among survivors. Returns at most limit
// results.
func (e *Engine) Search(ctx context.Context, table storage.Table, queryVector []float32, limit int, opts *Options) ([]*core.SearchResult, error) {
	if table == nil {
		return nil, ErrTableRequired
	}
	if limit <= 0 {
		return nil, core.ErrInvalidLimit
	}
	if err := core.ValidateVector(queryVector, table.Dimension()); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	fp := e.fingerprint("search", table.Name(), limit, opts, queryVector, nil)
	if results, ok := e.caches.Results.Get(fp); ok {
		return results, nil
	}

	candidates, err := table.VectorQuery(ctx, queryVector, FetchCount(limit))
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, limit)
	for _, candidate := range candidates {
		if !opts.Match(candidate.Record) {
			continue
		}
		results = append(results, candidate)
		if len(results) == limit {
			break
		}
	}

	e.caches.Results.Put(fp, results)
	return results, nil
}

// HybridSearch runs the same ANN stage and re-ranks candidates by a blend
// of vector similarity and additive keyword boosts:
//
//	combined = vector_score*0.7 + keyword_score*0.3
//
// where keyword_score collects +0.10 for a metadata value match, +0.05 for
// an identifier match and +0.03 for a content match. The combined score is
// deliberately not clamped. Ties break by vector similarity, then by ID.
func (e *Engine) HybridSearch(ctx context.Context, table storage.Table, queryVector []float32, keywords []string, limit int, opts *Options) ([]*core.SearchResult, error) {
	if table == nil {
		return nil, ErrTableRequired
	}
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if limit <= 0 {
		return nil, core.ErrInvalidLimit
	}
	if err := core.ValidateVector(queryVector, table.Dimension()); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	normalized := normalizeKeywords(keywords)

	fp := e.fingerprint("hybrid", table.Name(), limit, opts, queryVector, normalized)
	if results, ok := e.caches.Results.Get(fp); ok {
		return results, nil
	}

	candidates, err := table.VectorQuery(ctx, queryVector, FetchCount(limit))
	if err != nil {
		return nil, err
	}

	type ranked struct {
		result   *core.SearchResult
		combined float32
	}
	survivors := make([]ranked, 0, len(candidates))
	for _, candidate := range candidates {
		if !opts.Match(candidate.Record) {
			continue
		}
		kw := e.keywordScore(candidate.Record, normalized)
		survivors = append(survivors, ranked{
			result:   candidate,
			combined: candidate.Score*vectorWeight + kw*keywordWeight,
		})
	}

	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.combined != b.combined {
			return a.combined > b.combined
		}
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		return a.result.Record.ID < b.result.Record.ID
	})

	results := make([]*core.SearchResult, 0, limit)
	for _, r := range survivors {
		// Report the combined score; the ANN similarity was only an input.
		results = append(results, &core.SearchResult{
			Record: r.result.Record,
			Score:  r.combined,
		})
		if len(results) == limit {
			break
		}
	}

	e.caches.Results.Put(fp, results)
	return results, nil
}

// keywordScore computes the additive boost total for one record, memoized
// in the score cache keyed by (record, keyword set).
func (e *Engine) keywordScore(record *core.Record, keywords []string) float32 {
	key := cache.HashStrings(append([]string{record.ID}, keywords...)...)
	if score, ok := e.caches.Scores.Get(key); ok {
		return score
	}

	score := scoreKeywords(record, keywords)
	e.caches.Scores.Put(key, score)
	return score
}

func (e *Engine) fingerprint(mode, table string, limit int, opts *Options, vector []float32, keywords []string) cache.Fingerprint {
	options := mode + "|" + opts.canonical()
	if len(keywords) > 0 {
		options += "|kw:"
		for _, kw := range keywords {
			options += kw + "\x1f"
		}
	}
	return cache.Fingerprint{
		Table:      table,
		Limit:      limit,
		Options:    options,
		VectorHash: cache.HashVector(vector),
	}
}
