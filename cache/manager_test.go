package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	defer m.Close()

	require.NotNil(t, m.Datasets)
	require.NotNil(t, m.Structures)
	require.NotNil(t, m.Results)
	require.NotNil(t, m.Scores)
}

func TestManager_ResultCacheTTL(t *testing.T) {
	m, err := NewManager(WithResultCache(10, 30*time.Millisecond))
	require.NoError(t, err)
	defer m.Close()

	fp := Fingerprint{Table: "docs", Limit: 5}
	m.Results.Put(fp, []*core.SearchResult{{Score: 0.9}})

	_, ok := m.Results.Get(fp)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = m.Results.Get(fp)
	assert.False(t, ok)
}

func TestManager_ScoreCacheRoundTrip(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	defer m.Close()

	key := HashStrings("record-1", "kubernetes")
	m.Scores.Put(key, 0.18)
	m.Scores.Wait()

	score, ok := m.Scores.Get(key)
	require.True(t, ok)
	assert.InDelta(t, 0.18, float64(score), 1e-6)
}

func TestManager_CloseFlushesAllLayers(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	m.Results.Put(Fingerprint{Table: "docs"}, nil)
	m.Structures.Put("a", &fakeStructure{size: 10})

	m.Close()

	assert.Zero(t, m.Results.Len())
	assert.Zero(t, m.Structures.Len())
	assert.Zero(t, m.Datasets.Len())
}

func TestDatasetCache_SingleflightOpen(t *testing.T) {
	c := NewDatasetCache(8)
	ctx := context.Background()

	var opens atomic.Int32
	open := func(ctx context.Context) (storage.Table, error) {
		opens.Add(1)
		return nil, errors.New("backend unavailable")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetOrOpen(ctx, "docs", open)
			assert.Error(t, err)
		}()
	}
	wg.Wait()

	// A failed open is shared by all waiters and nothing is cached.
	assert.Zero(t, c.Len())
}
