package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/storage/badger"
)

func newSeededTable(t *testing.T, rows int) storage.Table {
	t.Helper()

	table, backend, err := badger.NewMemoryTable("docs", 4)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	records := make([]*core.Record, 0, rows)
	for i := 0; i < rows; i++ {
		records = append(records, &core.Record{
			ID:      fmt.Sprintf("r%05d", i),
			Content: fmt.Sprintf("document %d", i),
			Vector:  []float32{1, float32(i + 1), 1, 1},
		})
	}
	if len(records) > 0 {
		_, err = table.Write(ctx, records...)
		require.NoError(t, err)
	}
	return table
}

func TestRecordIterator_Batches(t *testing.T) {
	table := newSeededTable(t, 250)
	it := NewRecordIterator(table, 100)

	var sizes []int
	seen := make(map[string]struct{})
	err := it.ForEach(context.Background(), func(records []*core.Record) error {
		sizes = append(sizes, len(records))
		for _, record := range records {
			seen[record.ID] = struct{}{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Len(t, seen, 250)
}

func TestRecordIterator_EmptyTable(t *testing.T) {
	table := newSeededTable(t, 0)
	it := NewRecordIterator(table, 100)

	err := it.ForEach(context.Background(), func(records []*core.Record) error {
		t.Fatal("callback should not run for an empty table")
		return nil
	})
	require.NoError(t, err)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	table := newSeededTable(t, 250)
	it := NewRecordIterator(table, 100)

	sentinel := errors.New("stop")
	calls := 0
	err := it.ForEach(context.Background(), func(records []*core.Record) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_DefaultBatchSize(t *testing.T) {
	table := newSeededTable(t, 5)
	it := NewRecordIterator(table, 0)
	assert.Equal(t, DefaultBatchSize, it.batchSize)
}
