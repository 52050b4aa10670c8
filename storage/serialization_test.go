package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/core"
)

func TestRecordRoundTrip(t *testing.T) {
	record := &core.Record{
		ID:      "rec-1",
		Vector:  []float32{0.25, -0.5, 0.825},
		Content: "badger compaction strategy",
		Metadata: map[string]string{
			"topic": "storage",
			"lang":  "go",
		},
	}

	data := MarshalRecord(record)
	got, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Skip must consume exactly one record.
	n, err := RecordMUS.Skip(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
}

func TestRecordRoundTrip_EmptyOptionals(t *testing.T) {
	record := &core.Record{
		ID:      "rec-2",
		Vector:  []float32{1},
		Content: "x",
	}

	got, err := UnmarshalRecord(MarshalRecord(record))
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Empty(t, got.Metadata)
}

func TestRecordMarshal_MetadataKeysSorted(t *testing.T) {
	record := &core.Record{
		ID:      "rec-3",
		Vector:  []float32{1},
		Content: "x",
		Metadata: map[string]string{
			"zebra": "last",
			"alpha": "first",
			"mango": "middle",
		},
	}

	data := MarshalRecord(record)

	// Metadata pairs are written in sorted key order, so identical records
	// always marshal to identical bytes.
	require.Equal(t, data, MarshalRecord(record))
	iAlpha := bytes.Index(data, []byte("alpha"))
	iMango := bytes.Index(data, []byte("mango"))
	iZebra := bytes.Index(data, []byte("zebra"))
	require.NotEqual(t, -1, iAlpha)
	assert.Less(t, iAlpha, iMango)
	assert.Less(t, iMango, iZebra)

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestTableMetaRoundTrip(t *testing.T) {
	meta := &TableMeta{
		Name:            "docs",
		Dimension:       768,
		RowCount:        12034,
		FragmentCount:   7,
		CreatedAtMicros: 1700000000000000,
		VectorIndex: VectorIndexMeta{
			Kind:            core.IndexKindIVFFlat,
			Partitions:      64,
			RowCountAtBuild: 12000,
			BuiltAtMicros:   1700000001000000,
			SnapshotPath:    "/data/index/docs.vix",
		},
		ScalarIndexes: []ScalarIndexMeta{
			{Column: "topic", Kind: core.ScalarIndexBitmap},
			{Column: "author", Kind: core.ScalarIndexBTree},
		},
	}

	got, err := UnmarshalTableMeta(MarshalTableMeta(meta))
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestUnmarshal_Truncated(t *testing.T) {
	data := MarshalRecord(&core.Record{ID: "rec", Vector: []float32{1, 2}, Content: "abc"})

	_, err := UnmarshalRecord(data[:len(data)/2])
	assert.Error(t, err)

	_, err = UnmarshalTableMeta([]byte{0xff})
	assert.Error(t, err)
}
