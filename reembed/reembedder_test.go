package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/ai/mock"
	"github.com/strata-db/strata/core"
)

func TestNewReembedder_Validation(t *testing.T) {
	embedder := mock.NewEmbedderWithDimension(4)

	_, err := NewReembedder(nil, embedder, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrTableRequired)

	table := newSeededTable(t, 1)
	_, err = NewReembedder(table, nil, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestReembedder_Run(t *testing.T) {
	table := newSeededTable(t, 120)
	embedder := mock.NewEmbedderWithDimension(4)

	var out bytes.Buffer
	config := &Config{BatchSize: 50, ReportInterval: 50, MaxRetries: 2, RetryDelay: time.Millisecond}
	reembedder, err := NewReembedder(table, embedder, config, &out)
	require.NoError(t, err)

	ctx := context.Background()
	before, err := table.Get(ctx, "r00000")
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(ctx))

	// Three batches of 50, 50 and 20 records, one embedding call each.
	assert.Equal(t, 3, embedder.CallCount())
	assert.Contains(t, out.String(), "Re-embedding complete. Processed 120 records")

	after, err := table.Get(ctx, "r00000")
	require.NoError(t, err)
	assert.Equal(t, before.Content, after.Content)
	assert.NotEqual(t, before.Vector, after.Vector)

	stats, err := table.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, stats.RowCount)
}

func TestReembedder_Run_EmptyTable(t *testing.T) {
	table := newSeededTable(t, 0)
	embedder := mock.NewEmbedderWithDimension(4)

	var out bytes.Buffer
	reembedder, err := NewReembedder(table, embedder, nil, &out)
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(context.Background()))
	assert.Contains(t, out.String(), "No records found")
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_Run_DimensionMismatch(t *testing.T) {
	table := newSeededTable(t, 10)
	// Model output width does not match the table dimension of 4.
	embedder := mock.NewEmbedderWithDimension(8)

	reembedder, err := NewReembedder(table, embedder, &Config{
		BatchSize: 10, ReportInterval: 10, MaxRetries: 1, RetryDelay: time.Millisecond,
	}, &bytes.Buffer{})
	require.NoError(t, err)

	err = reembedder.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	// Nothing was overwritten.
	record, err := table.Get(context.Background(), "r00000")
	require.NoError(t, err)
	assert.Len(t, record.Vector, 4)
}

func TestReembedder_Run_RetriesTransientFailures(t *testing.T) {
	table := newSeededTable(t, 10)
	embedder := mock.NewEmbedderWithDimension(4)

	failures := 2
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("model unavailable")
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 2, 3, 4}
		}
		return vectors, nil
	}

	reembedder, err := NewReembedder(table, embedder, &Config{
		BatchSize: 10, ReportInterval: 10, MaxRetries: 3, RetryDelay: time.Millisecond,
	}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(context.Background()))
	assert.Zero(t, failures)
}
