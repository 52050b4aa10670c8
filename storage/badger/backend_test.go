package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	err = backend.Close()
	require.NoError(t, err)
	assert.True(t, backend.IsClosed())

	// Closing twice is a no-op.
	require.NoError(t, backend.Close())

	_, err = backend.TableNames(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestCreateTable(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()

	table, err := backend.CreateTable(ctx, "docs", 4)
	require.NoError(t, err)
	assert.Equal(t, "docs", table.Name())
	assert.Equal(t, 4, table.Dimension())

	_, err = backend.CreateTable(ctx, "docs", 4)
	assert.ErrorIs(t, err, storage.ErrTableExists)

	_, err = backend.CreateTable(ctx, "bad name", 4)
	assert.Error(t, err)

	_, err = backend.CreateTable(ctx, "zero-dim", 0)
	assert.ErrorIs(t, err, core.ErrInvalidDimension)
}

func TestOpenTable_NotFound(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	_, err = backend.OpenTable(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTableNames(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	for _, name := range []string{"alpha", "beta"} {
		_, err := backend.CreateTable(ctx, name, 3)
		require.NoError(t, err)
	}

	names, err := backend.TableNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestDropTable(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	table, err := backend.CreateTable(ctx, "docs", 3)
	require.NoError(t, err)

	_, err = table.Write(ctx, &core.Record{Content: "hello", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, backend.DropTable(ctx, "docs"))

	_, err = backend.OpenTable(ctx, "docs")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = backend.DropTable(ctx, "docs")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDropTable_DoesNotTouchSiblings(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	keep, err := backend.CreateTable(ctx, "keep", 3)
	require.NoError(t, err)
	_, err = backend.CreateTable(ctx, "kee", 3)
	require.NoError(t, err)

	written, err := keep.Write(ctx, &core.Record{Content: "survives", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	require.NoError(t, backend.DropTable(ctx, "kee"))

	got, err := keep.Get(ctx, written[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "survives", got.Content)
}

func TestNextOrdinal_SkipsZero(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	seq, err := backend.getSequence("docs")
	require.NoError(t, err)

	first, err := nextOrdinal(seq)
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := nextOrdinal(seq)
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestValidateTableName(t *testing.T) {
	assert.NoError(t, validateTableName("valid_Name-123"))
	assert.Error(t, validateTableName(""))
	assert.Error(t, validateTableName("has space"))
	assert.Error(t, validateTableName("has:colon"))
}

func TestInvalidateStructureCache_DropsLiveIndex(t *testing.T) {
	backend, err := OpenBackend(t.TempDir(), false,
		WithStructureCache(cache.NewStructureCache(0)))
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	table, err := backend.CreateTable(ctx, "docs", 4)
	require.NoError(t, err)

	records := make([]*core.Record, 0, 120)
	for i := 0; i < 120; i++ {
		records = append(records, &core.Record{
			ID:      fmt.Sprintf("r%05d", i),
			Content: "doc",
			Vector:  []float32{float32(i%7 + 1), float32(i%13 + 1), 1, 1},
		})
	}
	_, err = table.Write(ctx, records...)
	require.NoError(t, err)

	require.NoError(t, table.BuildVectorIndex(ctx, core.IndexKindHNSW, 32))

	tbl := table.(*Table)
	meta, err := table.Meta(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, meta.VectorIndex.SnapshotPath)
	before := tbl.loadSnapshot(ctx, meta)
	require.NotNil(t, before)

	backend.InvalidateStructureCache(meta.VectorIndex.SnapshotPath)

	// The table-resident copy must not keep serving; the next load reads
	// the snapshot file again and yields a fresh instance.
	after := tbl.loadSnapshot(ctx, meta)
	require.NotNil(t, after)
	assert.NotSame(t, before, after)

	// A path that matches no table is ignored.
	backend.InvalidateStructureCache("unrelated.vix")
	assert.Same(t, after, tbl.loadSnapshot(ctx, meta))
}
