package badger

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

// BuildVectorIndex rebuilds the table's vector index from a full scan and
// swaps it in atomically. Rows written while the build runs land past the
// snapshot's MaxOrdinal and stay queryable through the tail scan. A failed
// build returns before touching the live index, so the previous snapshot
// keeps serving.
func (t *Table) BuildVectorIndex(ctx context.Context, kind core.IndexKind, partitions int) error {
	if kind == core.IndexKindNone {
		return t.clearVectorIndex(ctx)
	}

	ids, vectors, maxOrdinal, err := t.collectRows(ctx)
	if err != nil {
		return err
	}

	snapshot, err := BuildSnapshot(kind, t.dimension, partitions, maxOrdinal, ids, vectors)
	if err != nil {
		return fmt.Errorf("building %s index for table %q: %w", kind, t.name, err)
	}

	path := t.backend.snapshotPath(t.name)
	if path != "" {
		if err := SaveSnapshot(path, snapshot); err != nil {
			return fmt.Errorf("persisting index for table %q: %w", t.name, err)
		}
	}

	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	err = t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}
		meta.VectorIndex = storage.VectorIndexMeta{
			Kind:            kind,
			Partitions:      partitions,
			RowCountAtBuild: uint64(len(ids)),
			BuiltAtMicros:   nowMicros(),
			SnapshotPath:    path,
		}
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	t.backend.liveIndex(t.name).Store(snapshot)
	if t.backend.structures != nil && path != "" {
		t.backend.structures.Put(path, snapshot)
	}

	t.backend.logger.Info("vector index built",
		"table", t.name, "kind", kind.String(), "rows", len(ids), "partitions", partitions)
	return nil
}

// clearVectorIndex drops the index and returns queries to brute-force scans.
func (t *Table) clearVectorIndex(ctx context.Context) error {
	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	var path string
	err := t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}
		path = meta.VectorIndex.SnapshotPath
		meta.VectorIndex = storage.VectorIndexMeta{}
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	t.backend.liveIndex(t.name).Store(nil)
	if path != "" {
		if t.backend.structures != nil {
			t.backend.structures.Invalidate(path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.backend.logger.Warn("error removing index snapshot", "path", path, "err", err)
		}
	}
	return nil
}

// collectRows reads every row in ordinal order within one transaction, so
// the snapshot sees a consistent view and MaxOrdinal bounds it exactly.
func (t *Table) collectRows(ctx context.Context) (ids []string, vectors [][]float32, maxOrdinal uint64, err error) {
	err = t.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeOrdinalPrefix(t.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefixLen := len(makeOrdinalPrefix(t.name))
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ordinal, err := unmarshalOrdinal(iter.Item().Key()[prefixLen:])
			if err != nil {
				return err
			}
			if ordinal > maxOrdinal {
				maxOrdinal = ordinal
			}

			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			item, err := tx.Get(makeRecordKey(t.name, id))
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

			ids = append(ids, record.ID)
			vectors = append(vectors, record.Vector)
		}
		return nil
	}, false)
	return ids, vectors, maxOrdinal, err
}

// BuildScalarIndex rebuilds the scalar index over one metadata column,
// replacing any previous index on that column.
func (t *Table) BuildScalarIndex(ctx context.Context, column string, kind core.ScalarIndexKind) error {
	mu := t.backend.tableWriteMutex(t.name)
	mu.Lock()
	defer mu.Unlock()

	return t.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := readMetaTx(tx, t.name)
		if err != nil {
			return err
		}

		if err := dropScalarColumn(tx, t.name, column); err != nil {
			return err
		}

		found := false
		bitmaps := newBitmapEdit(t.name)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(t.name)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.Record
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			}); err != nil {
				return err
			}

			value, ok := record.Metadata[column]
			if !ok {
				continue
			}
			found = true

			switch kind {
			case core.ScalarIndexBTree:
				if err := tx.Set(makeBTreeKey(t.name, column, value, record.ID), nil); err != nil {
					return err
				}
			case core.ScalarIndexBitmap:
				item, err := tx.Get(makeIDOrdinalKey(t.name, record.ID))
				if err != nil {
					return err
				}
				var ordinal uint64
				if err := item.Value(func(val []byte) error {
					ordinal, err = unmarshalOrdinal(val)
					return err
				}); err != nil {
					return err
				}
				bm, err := bitmaps.load(tx, column, value)
				if err != nil {
					return err
				}
				bm.Add(ordinal)
			}
		}
		// Must close before commit; Close is idempotent so the defer is
		// harmless.
		iter.Close()

		if !found {
			return fmt.Errorf("%w: metadata column %q in table %q", core.ErrNotFound, column, t.name)
		}

		if err := bitmaps.flush(tx); err != nil {
			return err
		}

		replaced := false
		for i := range meta.ScalarIndexes {
			if meta.ScalarIndexes[i].Column == column {
				meta.ScalarIndexes[i].Kind = kind
				replaced = true
				break
			}
		}
		if !replaced {
			meta.ScalarIndexes = append(meta.ScalarIndexes, storage.ScalarIndexMeta{
				Column: column,
				Kind:   kind,
			})
		}
		if err := tx.Set(makeMetaKey(t.name), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// dropScalarColumn removes all persisted entries of both index kinds for
// one column. Keys are collected before deleting so the iterator never
// walks its own edits.
func dropScalarColumn(tx *badger.Txn, table, column string) error {
	var stale [][]byte
	for _, prefix := range [][]byte{
		makeBTreeColumnPrefix(table, column),
		makeBitmapColumnPrefix(table, column),
	} {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			stale = append(stale, iter.Item().KeyCopy(nil))
		}
		iter.Close()
	}
	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// loadSnapshot resolves the table's live index snapshot, going through the
// structure cache when one is attached. Load failures degrade to nil so
// the caller falls back to an exact scan; an unavailable index must never
// fail a query.
func (t *Table) loadSnapshot(ctx context.Context, meta *storage.TableMeta) *Snapshot {
	if meta.VectorIndex.Kind == core.IndexKindNone {
		return nil
	}

	live := t.backend.liveIndex(t.name)
	if snapshot := live.Load(); snapshot != nil {
		return snapshot
	}

	path := meta.VectorIndex.SnapshotPath
	if path == "" {
		return nil
	}

	if t.backend.structures != nil {
		structure, err := t.backend.structures.GetOrLoad(ctx, path, func(ctx context.Context) (cache.Structure, error) {
			return LoadSnapshot(path)
		})
		if err == nil {
			snapshot := structure.(*Snapshot)
			live.Store(snapshot)
			return snapshot
		}
		t.backend.logger.Warn("index snapshot load via cache failed, falling back to scan",
			"table", t.name, "path", path, "err", err)
	}

	snapshot, err := LoadSnapshot(path)
	if err != nil {
		t.backend.logger.Warn("index snapshot load failed, falling back to scan",
			"table", t.name, "path", path, "err", err)
		return nil
	}
	live.Store(snapshot)
	return snapshot
}
