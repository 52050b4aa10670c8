package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

const defaultSequenceBandwidth = 100

// Backend implements storage.Store on BadgerDB. Tables live in one database
// as key namespaces; reads run in snapshot-isolated transactions and writes
// to a table are serialized by a per-table mutex.
type Backend struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger

	structures *cache.StructureCache

	seqs    sync.Map // table name -> *badger.Sequence
	writeMu sync.Map // table name -> *sync.Mutex
	indexes sync.Map // table name -> *atomic.Pointer[Snapshot]

	closed atomic.Bool
}

var _ storage.Store = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
	}
}

// WithStructureCache shares loaded index snapshots through the given cache.
// Without it every handle loads snapshots directly from disk.
func WithStructureCache(structures *cache.StructureCache) BackendOption {
	return func(b *Backend) {
		b.structures = structures
	}
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, backendOpts ...BackendOption) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	b := &Backend{
		dir:    filePath,
		logger: slog.Default(),
	}
	for _, opt := range backendOpts {
		opt(b)
	}

	opts.Logger = &badgerLoggerAdapter{logger: b.logger}
	opts.Compression = options.None
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	b.db = db

	return b, nil
}

// OpenMemoryBackend opens an in-memory backend for testing.
func OpenMemoryBackend(backendOpts ...BackendOption) (*Backend, error) {
	return OpenBackend("", true, backendOpts...)
}

// Close releases sequences and closes the database.
func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.seqs.Range(func(_, v any) bool {
		if err := v.(*badger.Sequence).Release(); err != nil {
			b.logger.Error("error releasing sequence", "err", err)
		}
		return true
	})

	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	return b.closed.Load()
}

// WithTx runs fn inside a transaction. Update transactions must be
// committed by fn; read transactions are discarded automatically.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, update bool) error {
	if b.closed.Load() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(update)
	defer tx.Discard()
	return fn(tx)
}

// CreateTable creates a table with a fixed vector dimension.
func (b *Backend) CreateTable(ctx context.Context, name string, dimension int) (storage.Table, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}
	if err := core.ValidateDimension(dimension); err != nil {
		return nil, err
	}

	meta := &storage.TableMeta{
		Name:            name,
		Dimension:       dimension,
		CreatedAtMicros: nowMicros(),
	}

	err := b.WithTx(func(tx *badger.Txn) error {
		key := makeMetaKey(name)
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("%w: %s", storage.ErrTableExists, name)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := tx.Set(key, storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return &Table{backend: b, name: name, dimension: dimension}, nil
}

// OpenTable opens an existing table by name.
func (b *Backend) OpenTable(ctx context.Context, name string) (storage.Table, error) {
	meta, err := b.readMeta(name)
	if err != nil {
		return nil, err
	}
	return &Table{backend: b, name: name, dimension: meta.Dimension}, nil
}

// DropTable removes a table and everything scoped to it.
func (b *Backend) DropTable(ctx context.Context, name string) error {
	if _, err := b.readMeta(name); err != nil {
		return err
	}

	mu := b.tableWriteMutex(name)
	mu.Lock()
	defer mu.Unlock()

	err := b.db.DropPrefix([]byte(tablePrefix + name + ":"))
	if err != nil {
		return err
	}

	b.indexes.Delete(name)
	if seq, ok := b.seqs.LoadAndDelete(name); ok {
		if err := seq.(*badger.Sequence).Release(); err != nil {
			b.logger.Warn("error releasing sequence for dropped table", "table", name, "err", err)
		}
	}
	return nil
}

// TableNames lists all table names in the store.
func (b *Backend) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tablePrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().Key())
			if !strings.HasSuffix(key, metaSuffix) {
				continue
			}
			name := strings.TrimSuffix(strings.TrimPrefix(key, tablePrefix), metaSuffix)
			names = append(names, name)
		}
		return nil
	}, false)
	return names, err
}

// readMeta fetches a table descriptor, or core.ErrNotFound.
func (b *Backend) readMeta(name string) (*storage.TableMeta, error) {
	var meta *storage.TableMeta
	err := b.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeMetaKey(name))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: table %q", core.ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			meta, err = storage.UnmarshalTableMeta(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// tableWriteMutex returns the mutex serializing writes to one table.
func (b *Backend) tableWriteMutex(name string) *sync.Mutex {
	mu, _ := b.writeMu.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// liveIndex returns the pointer cell holding a table's in-memory index.
func (b *Backend) liveIndex(name string) *atomic.Pointer[Snapshot] {
	ptr, _ := b.indexes.LoadOrStore(name, &atomic.Pointer[Snapshot]{})
	return ptr.(*atomic.Pointer[Snapshot])
}

// InvalidateStructureCache evicts a cached index structure by its snapshot
// path, including any table-resident copy. The next query that needs the
// structure reloads it from disk.
func (b *Backend) InvalidateStructureCache(path string) {
	if path == "" {
		return
	}
	if b.structures != nil {
		b.structures.Invalidate(path)
	}
	b.indexes.Range(func(key, value any) bool {
		if b.snapshotPath(key.(string)) == path {
			value.(*atomic.Pointer[Snapshot]).Store(nil)
			return false
		}
		return true
	})
}

// getSequence returns the ordinal sequence for a table, creating it on
// first use.
func (b *Backend) getSequence(name string) (*badger.Sequence, error) {
	if seq, ok := b.seqs.Load(name); ok {
		return seq.(*badger.Sequence), nil
	}
	seq, err := b.db.GetSequence(makeSequenceKey(name), defaultSequenceBandwidth)
	if err != nil {
		return nil, err
	}
	actual, loaded := b.seqs.LoadOrStore(name, seq)
	if loaded {
		// Lost the race; release ours and use the stored one.
		if err := seq.Release(); err != nil {
			b.logger.Warn("error releasing redundant sequence", "table", name, "err", err)
		}
	}
	return actual.(*badger.Sequence), nil
}

// snapshotPath returns the on-disk location of a table's index snapshot.
// Empty for in-memory backends, which keep indexes resident only.
func (b *Backend) snapshotPath(name string) string {
	if b.dir == "" {
		return ""
	}
	return filepath.Join(b.dir, "index", name+".vix")
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name must not be empty")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("invalid table name %q: only letters, digits, '_' and '-' are allowed", name)
		}
	}
	return nil
}
