package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCount(t *testing.T) {
	assert.Equal(t, 15, FetchCount(5))
	assert.Equal(t, 40, FetchCount(20))
	assert.Equal(t, 12, FetchCount(1))
	assert.Equal(t, 20, FetchCount(10))
}

func newTestEngine(t *testing.T, cacheOpts ...cache.ManagerOption) (*Engine, *cache.Manager) {
	t.Helper()
	caches, err := cache.NewManager(cacheOpts...)
	require.NoError(t, err)
	t.Cleanup(caches.Close)

	engine, err := NewEngine(caches)
	require.NoError(t, err)
	return engine, caches
}

func seedTable(t *testing.T, rows, dim int) storage.Table {
	t.Helper()
	table, backend, err := badger.NewMemoryTable("docs", dim)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	for i := 0; i < rows; i++ {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = float32(math.Sin(float64(i*dim+d)*0.9)) + 0.01
		}
		_, err := table.Write(ctx, &core.Record{
			ID:      fmt.Sprintf("r%04d", i),
			Content: fmt.Sprintf("document number %d about storage engines", i),
			Vector:  vec,
			Metadata: map[string]string{
				"parity": []string{"even", "odd"}[i%2],
			},
		})
		require.NoError(t, err)
	}
	return table
}

func TestNewEngine_RequiresCaches(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrCacheManagerRequired)
}

func TestSearch_ArgumentValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	table := seedTable(t, 5, 3)
	ctx := context.Background()

	_, err := engine.Search(ctx, nil, []float32{1, 0, 0}, 5, nil)
	assert.ErrorIs(t, err, ErrTableRequired)

	_, err = engine.Search(ctx, table, []float32{1, 0}, 5, nil)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = engine.Search(ctx, table, []float32{1, 0, 0}, 0, nil)
	assert.ErrorIs(t, err, core.ErrInvalidLimit)

	_, err = engine.Search(ctx, table, []float32{1, 0, 0}, 5, &Options{
		Filters: []Filter{{Column: "", Op: OpEqual, Values: []string{"x"}}},
	})
	assert.ErrorIs(t, err, core.ErrInvalidFilter)
}

func TestSearch_MatchesBruteForceBelowIndexThreshold(t *testing.T) {
	engine, _ := newTestEngine(t)
	table := seedTable(t, 80, 4)
	ctx := context.Background()

	query := []float32{0.3, -0.2, 0.9, 0.1}
	results, err := engine.Search(ctx, table, query, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 10)

	// Rank by hand against a full scan with the same similarity metric.
	var expected []*core.SearchResult
	normalized := make([]float32, len(query))
	copy(normalized, query)
	core.NormalizeVector(normalized)
	err = table.Scan(ctx, func(record *core.Record) (bool, error) {
		expected = append(expected, &core.SearchResult{
			Record: record,
			Score:  core.CosineSimilarity(normalized, record.Vector),
		})
		return true, nil
	})
	require.NoError(t, err)
	sortBruteForce(expected)

	for i, r := range results {
		assert.Equal(t, expected[i].Record.ID, r.Record.ID, "rank %d diverged from brute force", i)
		assert.InDelta(t, float64(expected[i].Score), float64(r.Score), 1e-5)
	}
}

func TestSearch_PostFilter(t *testing.T) {
	engine, _ := newTestEngine(t)
	table := seedTable(t, 40, 4)
	ctx := context.Background()

	opts := &Options{Filters: []Filter{
		{Column: "parity", Op: OpEqual, Values: []string{"even"}},
	}}
	results, err := engine.Search(ctx, table, []float32{1, 0, 0, 0}, 5, opts)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	for _, r := range results {
		assert.Equal(t, "even", r.Record.Metadata["parity"])
	}

	// Survivors keep similarity order.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// countingTable wraps a Table and counts VectorQuery invocations.
type countingTable struct {
	storage.Table
	queries atomic.Int64
}

func (c *countingTable) VectorQuery(ctx context.Context, vector []float32, k int) ([]*core.SearchResult, error) {
	c.queries.Add(1)
	return c.Table.VectorQuery(ctx, vector, k)
}

func TestSearch_ResultCacheHit(t *testing.T) {
	engine, _ := newTestEngine(t)
	table := &countingTable{Table: seedTable(t, 30, 4)}
	ctx := context.Background()

	query := []float32{1, 0.5, 0, 0}
	first, err := engine.Search(ctx, table, query, 5, nil)
	require.NoError(t, err)
	second, err := engine.Search(ctx, table, query, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), table.queries.Load(), "second call must be served from cache")

	// A different limit is a different fingerprint.
	_, err = engine.Search(ctx, table, query, 6, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), table.queries.Load())
}

func TestSearch_ResultCacheTTLExpiry(t *testing.T) {
	engine, _ := newTestEngine(t, cache.WithResultCache(200, 50*time.Millisecond))
	table := &countingTable{Table: seedTable(t, 30, 4)}
	ctx := context.Background()

	query := []float32{1, 0.5, 0, 0}
	_, err := engine.Search(ctx, table, query, 5, nil)
	require.NoError(t, err)
	_, err = engine.Search(ctx, table, query, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), table.queries.Load())

	time.Sleep(80 * time.Millisecond)

	_, err = engine.Search(ctx, table, query, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), table.queries.Load(), "expired entry must re-execute the search")
}

func TestHybridSearch_KeywordBreaksVectorTie(t *testing.T) {
	engine, _ := newTestEngine(t)
	table, backend, err := badger.NewMemoryTable("docs", 2)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	// Identical vectors, so vector_score ties exactly.
	_, err = table.Write(ctx,
		&core.Record{ID: "plain", Content: "nothing of note", Vector: []float32{1, 0}},
		&core.Record{ID: "boosted", Content: "all about golang runtimes", Vector: []float32{1, 0}},
	)
	require.NoError(t, err)

	results, err := engine.HybridSearch(ctx, table, []float32{1, 0}, []string{"golang"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "boosted", results[0].Record.ID)
	assert.Greater(t, results[0].Score, results[1].Score,
		"keyword match must score strictly higher on a vector tie")
}

func TestHybridSearch_BoostComposition(t *testing.T) {
	engine, _ := newTestEngine(t)
	table, backend, err := badger.NewMemoryTable("docs", 2)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	_, err = table.Write(ctx, &core.Record{
		ID:       "alpha-doc",
		Content:  "alpha content here",
		Vector:   []float32{1, 0},
		Metadata: map[string]string{"topic": "alpha"},
	})
	require.NoError(t, err)

	results, err := engine.HybridSearch(ctx, table, []float32{1, 0}, []string{"alpha"}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// vector_score is 1.0 (exact match); all three boosts fire:
	// 1.0*0.7 + (0.10+0.05+0.03)*0.3 = 0.754.
	assert.InDelta(t, 0.754, float64(results[0].Score), 1e-4)
}

func TestHybridSearch_ScoreNotClamped(t *testing.T) {
	// With an exact vector match plus boosts the combined score exceeds
	// what a clamped [0,1] similarity-only ranking could produce at the
	// same weights; make sure nothing clamps the blend.
	engine, _ := newTestEngine(t)
	table, backend, err := badger.NewMemoryTable("docs", 2)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	_, err = table.Write(ctx, &core.Record{
		ID:       "x",
		Content:  "term",
		Vector:   []float32{1, 0},
		Metadata: map[string]string{"k": "term"},
	})
	require.NoError(t, err)

	results, err := engine.HybridSearch(ctx, table, []float32{1, 0}, []string{"term", "x"}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	expected := 1.0*vectorWeight + (metadataBoost+idBoost+contentBoost)*keywordWeight
	assert.InDelta(t, float64(expected), float64(results[0].Score), 1e-4)
}

func TestHybridSearch_RequiresKeywords(t *testing.T) {
	engine, _ := newTestEngine(t)
	table := seedTable(t, 5, 3)

	_, err := engine.HybridSearch(context.Background(), table, []float32{1, 0, 0}, nil, 5, nil)
	assert.ErrorIs(t, err, ErrNoKeywords)
}

func TestHybridSearch_TieFallsBackToID(t *testing.T) {
	engine, _ := newTestEngine(t)
	table, backend, err := badger.NewMemoryTable("docs", 2)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	// Same vector, same (absent) keyword hits: identical combined score.
	_, err = table.Write(ctx,
		&core.Record{ID: "bbb", Content: "one", Vector: []float32{0, 1}},
		&core.Record{ID: "aaa", Content: "two", Vector: []float32{0, 1}},
	)
	require.NoError(t, err)

	results, err := engine.HybridSearch(ctx, table, []float32{0, 1}, []string{"absent"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].Record.ID, "equal scores must order by ID")
}

func sortBruteForce(results []*core.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}
