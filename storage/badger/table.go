package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/dgraph-io/badger/v4"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

// Table implements storage.Table on a Backend. Handles are cheap and
// non-owning; the table itself lives in the backend.
type Table struct {
	backend   *Backend
	name      string
	dimension int
}

var _ storage.Table = (*Table)(nil)

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Dimension returns the fixed vector dimension declared at creation.
func (t *Table) Dimension() int {
	return t.dimension
}

// Close releases handle-scoped resources. Sequences and indexes are owned
// by the backend, so this is a no-op.
func (t *Table) Close() error {
	return nil
}

// Stats reports current row and fragment counts.
func (t *Table) Stats(ctx context.Context) (core.TableStats, error) {
	meta, err := t.backend.readMeta(t.name)
	if err != nil {
		return core.TableStats{}, err
	}
	return core.TableStats{
		RowCount:      int(meta.RowCount),
		FragmentCount: int(meta.FragmentCount),
	}, nil
}

// Meta returns a copy of the table's persisted descriptor.
func (t *Table) Meta(ctx context.Context) (*storage.TableMeta, error) {
	return t.backend.readMeta(t.name)
}

// Write upserts records. Each committed batch counts as one new fragment
// until the next compaction.
func (t *Table) Write(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	if len(records) == 0 {
		return records, nil
	}

	for _, record := range records {
		if err := core.ValidateRecord(record, t.dimension); err != nil {
			return nil, err
		}
		if record.ID == "" {
			record.ID = core.IDFromContent(record.Content)
		}
		// Store normalized vectors so similarity is pure dot product.
		vec := slices.Clone(record.Vector)
		core.NormalizeVector(vec)
		record.Vector = vec
	}

	seq, err := t.backend.getSequence(t.name)
	if err != nil {
		return nil, err
	}

	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	err = t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}

		bitmaps := newBitmapEdit(t.name)

		for _, record := range records {
			old, ordinal, err := t.readExisting(tx, record.ID)
			if err != nil {
				return err
			}

			if old == nil {
				ordinal, err = nextOrdinal(seq)
				if err != nil {
					return err
				}
				if err := tx.Set(makeIDOrdinalKey(t.name, record.ID), marshalOrdinal(ordinal)); err != nil {
					return err
				}
				if err := tx.Set(makeOrdinalKey(t.name, ordinal), []byte(record.ID)); err != nil {
					return err
				}
				meta.RowCount++
			} else {
				if err := removeScalarEntries(tx, t.name, meta, old, ordinal, bitmaps); err != nil {
					return err
				}
			}

			if err := tx.Set(makeRecordKey(t.name, record.ID), storage.MarshalRecord(record)); err != nil {
				return err
			}
			if err := addScalarEntries(tx, t.name, meta, record, ordinal, bitmaps); err != nil {
				return err
			}
		}

		if err := bitmaps.flush(tx); err != nil {
			return err
		}

		meta.FragmentCount++
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return records, err
}

// Get retrieves a single record by ID.
func (t *Table) Get(ctx context.Context, id string) (*core.Record, error) {
	var record *core.Record
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecordKey(t.name, id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: record %q", core.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = storage.UnmarshalRecord(val)
			return err
		})
	}, false)
	return record, err
}

// Delete removes records by ID. Deleted rows leave stale versions behind,
// so the batch counts against fragmentation like a write does.
func (t *Table) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	return t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}

		bitmaps := newBitmapEdit(t.name)

		for _, id := range ids {
			record, ordinal, err := t.readExisting(tx, id)
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("%w: record %q", core.ErrNotFound, id)
			}

			if err := removeScalarEntries(tx, t.name, meta, record, ordinal, bitmaps); err != nil {
				return err
			}
			if err := tx.Delete(makeRecordKey(t.name, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeIDOrdinalKey(t.name, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeOrdinalKey(t.name, ordinal)); err != nil {
				return err
			}
			meta.RowCount--
		}

		if err := bitmaps.flush(tx); err != nil {
			return err
		}

		meta.FragmentCount++
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Scan visits every record in the table.
func (t *Table) Scan(ctx context.Context, fn func(record *core.Record) (bool, error)) error {
	return t.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(t.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.Record
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			keep, err := fn(record)
			if err != nil {
				return err
			}
			if !keep {
				return nil
			}
		}
		return nil
	}, false)
}

// VectorQuery returns the k most similar records by cosine similarity.
// The index, when present, only nominates candidates; every returned score
// is recomputed from the stored row, so a stale index entry can cost recall
// but never report a wrong score or a deleted row.
func (t *Table) VectorQuery(ctx context.Context, vector []float32, k int) ([]*core.SearchResult, error) {
	if err := core.ValidateVector(vector, t.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, core.ErrInvalidLimit
	}

	query := slices.Clone(vector)
	core.NormalizeVector(query)

	meta, err := t.backend.readMeta(t.name)
	if err != nil {
		return nil, err
	}

	snapshot := t.loadSnapshot(ctx, meta)
	if snapshot == nil {
		return t.flatScan(ctx, query, k)
	}

	// Over-ask the index to absorb entries that point at deleted rows.
	refs := snapshot.Search(query, k*2)
	candidateIDs := make([]string, 0, len(refs))
	for _, ref := range refs {
		candidateIDs = append(candidateIDs, snapshot.IDs[ref.Position])
	}

	tailIDs, err := t.ordinalTail(ctx, snapshot.MaxOrdinal)
	if err != nil {
		return nil, err
	}
	candidateIDs = append(candidateIDs, tailIDs...)

	results := make([]*core.SearchResult, 0, len(candidateIDs))
	seen := make(map[string]bool, len(candidateIDs))
	err = t.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range candidateIDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			item, err := tx.Get(makeRecordKey(t.name, id))
			if err == badger.ErrKeyNotFound {
				continue // deleted since the index was built
			}
			if err != nil {
				return err
			}
			var record *core.Record
			if err := item.Value(func(val []byte) error {
				record, err = storage.UnmarshalRecord(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, &core.SearchResult{
				Record: record,
				Score:  core.CosineSimilarity(query, record.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// flatScan is the exact brute-force path used when no index exists.
func (t *Table) flatScan(ctx context.Context, query []float32, k int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult
	err := t.Scan(ctx, func(record *core.Record) (bool, error) {
		results = append(results, &core.SearchResult{
			Record: record,
			Score:  core.CosineSimilarity(query, record.Vector),
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ordinalTail returns the IDs of rows written after the index snapshot.
func (t *Table) ordinalTail(ctx context.Context, afterOrdinal uint64) ([]string, error) {
	var ids []string
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeOrdinalPrefix(t.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeOrdinalKey(t.name, afterOrdinal+1)); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return ids, err
}

// DistinctCount reports the distinct-value cardinality of a metadata
// column, served from a scalar index when one exists.
func (t *Table) DistinctCount(ctx context.Context, column string) (int, error) {
	meta, err := t.backend.readMeta(t.name)
	if err != nil {
		return 0, err
	}

	for _, idx := range meta.ScalarIndexes {
		if idx.Column != column {
			continue
		}
		switch idx.Kind {
		case core.ScalarIndexBitmap:
			return t.countKeys(makeBitmapColumnPrefix(t.name, column))
		case core.ScalarIndexBTree:
			return t.countBTreeValues(column)
		}
	}

	values := make(map[string]struct{})
	err = t.Scan(ctx, func(record *core.Record) (bool, error) {
		if v, ok := record.Metadata[column]; ok {
			values[v] = struct{}{}
		}
		return true, nil
	})
	return len(values), err
}

// MetadataColumns lists the metadata keys present in the table.
func (t *Table) MetadataColumns(ctx context.Context) ([]string, error) {
	columns := make(map[string]struct{})
	err := t.Scan(ctx, func(record *core.Record) (bool, error) {
		for k := range record.Metadata {
			columns[k] = struct{}{}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(columns))
	for k := range columns {
		names = append(names, k)
	}
	slices.Sort(names)
	return names, nil
}

// Compact merges fragments and prunes stale versions. The table's logical
// fragment count collapses to at most one; the LSM itself is flattened for
// on-disk backends.
func (t *Table) Compact(ctx context.Context) error {
	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	err := t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}
		if meta.RowCount == 0 {
			meta.FragmentCount = 0
		} else {
			meta.FragmentCount = 1
		}
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	if t.backend.dir != "" {
		if err := t.backend.db.Flatten(2); err != nil {
			return err
		}
		if err := t.backend.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
			return err
		}
	}
	return nil
}

// readExisting returns the stored record and ordinal for id, or nil when absent.
func (t *Table) readExisting(tx *badger.Txn, id string) (*core.Record, uint64, error) {
	item, err := tx.Get(makeIDOrdinalKey(t.name, id))
	if err == badger.ErrKeyNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var ordinal uint64
	if err := item.Value(func(val []byte) error {
		ordinal, err = unmarshalOrdinal(val)
		return err
	}); err != nil {
		return nil, 0, err
	}

	item, err = tx.Get(makeRecordKey(t.name, id))
	if err == badger.ErrKeyNotFound {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var record *core.Record
	if err := item.Value(func(val []byte) error {
		record, err = storage.UnmarshalRecord(val)
		return err
	}); err != nil {
		return nil, 0, err
	}
	return record, ordinal, nil
}

// countKeys counts keys under a prefix without loading values.
func (t *Table) countKeys(prefix []byte) (int, error) {
	count := 0
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// countBTreeValues counts distinct values in the ordered index for column.
// Keys are sorted, so distinct values appear as contiguous runs.
func (t *Table) countBTreeValues(column string) (int, error) {
	prefix := makeBTreeColumnPrefix(t.name, column)
	count := 0
	prev := ""
	first := true
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			rest := string(key[len(prefix):])
			sep := strings.LastIndexByte(rest, keySep)
			if sep < 0 {
				continue
			}
			value := rest[:sep]
			if first || value != prev {
				count++
				prev = value
				first = false
			}
		}
		return nil
	}, false)
	return count, err
}

// readMetaTx fetches a table descriptor inside an open transaction.
func readMetaTx(tx *badger.Txn, name string) (*storage.TableMeta, error) {
	item, err := tx.Get(makeMetaKey(name))
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("%w: table %q", core.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	var meta *storage.TableMeta
	if err := item.Value(func(val []byte) error {
		meta, err = storage.UnmarshalTableMeta(val)
		return err
	}); err != nil {
		return nil, err
	}
	return meta, nil
}

// nextOrdinal draws the next non-zero ordinal from a sequence.
// BadgerDB sequences can return 0 on first call, so we skip it.
func nextOrdinal(seq *badger.Sequence) (uint64, error) {
	ordinal, err := seq.Next()
	if err != nil {
		return 0, err
	}
	if ordinal == 0 {
		ordinal, err = seq.Next()
		if err != nil {
			return 0, err
		}
	}
	return ordinal, nil
}

// sortResults orders by score descending, breaking ties by ID for
// determinism.
func sortResults(results []*core.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

// bitmapEdit batches read-modify-write edits to bitmap index postings so a
// multi-record transaction touches each bitmap once.
type bitmapEdit struct {
	table string
	edits map[string]*roaring64.Bitmap // bitmap key -> working set
}

func newBitmapEdit(table string) *bitmapEdit {
	return &bitmapEdit{table: table, edits: make(map[string]*roaring64.Bitmap)}
}

func (e *bitmapEdit) load(tx *badger.Txn, column, value string) (*roaring64.Bitmap, error) {
	key := string(makeBitmapKey(e.table, column, value))
	if bm, ok := e.edits[key]; ok {
		return bm, nil
	}

	bm := roaring64.New()
	item, err := tx.Get([]byte(key))
	if err == nil {
		if err := item.Value(func(val []byte) error {
			return bm.UnmarshalBinary(val)
		}); err != nil {
			return nil, err
		}
	} else if err != badger.ErrKeyNotFound {
		return nil, err
	}

	e.edits[key] = bm
	return bm, nil
}

func (e *bitmapEdit) flush(tx *badger.Txn) error {
	for key, bm := range e.edits {
		if bm.IsEmpty() {
			if err := tx.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		data, err := bm.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Set([]byte(key), data); err != nil {
			return err
		}
	}
	return nil
}

// addScalarEntries maintains every scalar index for a newly stored record.
func addScalarEntries(tx *badger.Txn, table string, meta *storage.TableMeta, record *core.Record, ordinal uint64, bitmaps *bitmapEdit) error {
	for _, idx := range meta.ScalarIndexes {
		value, ok := record.Metadata[idx.Column]
		if !ok {
			continue
		}
		switch idx.Kind {
		case core.ScalarIndexBTree:
			if err := tx.Set(makeBTreeKey(table, idx.Column, value, record.ID), nil); err != nil {
				return err
			}
		case core.ScalarIndexBitmap:
			bm, err := bitmaps.load(tx, idx.Column, value)
			if err != nil {
				return err
			}
			bm.Add(ordinal)
		}
	}
	return nil
}

// removeScalarEntries drops a record's scalar index entries before an
// update or delete.
func removeScalarEntries(tx *badger.Txn, table string, meta *storage.TableMeta, record *core.Record, ordinal uint64, bitmaps *bitmapEdit) error {
	for _, idx := range meta.ScalarIndexes {
		value, ok := record.Metadata[idx.Column]
		if !ok {
			continue
		}
		switch idx.Kind {
		case core.ScalarIndexBTree:
			if err := tx.Delete(makeBTreeKey(table, idx.Column, value, record.ID)); err != nil {
				return err
			}
		case core.ScalarIndexBitmap:
			bm, err := bitmaps.load(tx, idx.Column, value)
			if err != nil {
				return err
			}
			bm.Remove(ordinal)
		}
	}
	return nil
}

func marshalOrdinal(ordinal uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ordinal)
	return buf
}

func unmarshalOrdinal(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, storage.ErrTruncatedData
	}
	return binary.BigEndian.Uint64(data), nil
}

func nowMicros() int64 {
	return time.Now().UTC().UnixMicro()
}
