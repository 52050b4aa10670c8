package storage

import (
	"context"

	"github.com/strata-db/strata/core"
)

// Store is the storage substrate: a collection of named, versioned tables.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// OpenTable opens an existing table by name.
	// Returns core.ErrNotFound if the table does not exist.
	OpenTable(ctx context.Context, name string) (Table, error)

	// CreateTable creates a table with a fixed vector dimension.
	// The dimension is immutable for the lifetime of the table.
	// Returns ErrTableExists if the name is already taken.
	CreateTable(ctx context.Context, name string, dimension int) (Table, error)

	// DropTable removes a table and all of its rows and indexes.
	// Returns core.ErrNotFound if the table does not exist.
	DropTable(ctx context.Context, name string) error

	// TableNames lists the names of all tables in the store.
	TableNames(ctx context.Context) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}

// Table is a non-owning handle to a single table. Reads operate against a
// consistent snapshot and never block concurrent writes; writes to the same
// table are serialized by the implementation.
type Table interface {
	// Name returns the table name.
	Name() string

	// Dimension returns the fixed vector dimension declared at creation.
	Dimension() int

	// Stats reports current row and fragment counts.
	Stats(ctx context.Context) (core.TableStats, error)

	// Meta returns a copy of the table's persisted metadata, including
	// vector and scalar index descriptors.
	Meta(ctx context.Context) (*TableMeta, error)

	// Write upserts records. Records with an empty ID get a content-derived
	// one. Vectors are validated against the table dimension and
	// L2-normalized before storage. Returns the records with IDs populated.
	Write(ctx context.Context, records ...*core.Record) ([]*core.Record, error)

	// Get retrieves a single record by ID.
	// Returns core.ErrNotFound if the record does not exist.
	Get(ctx context.Context, id string) (*core.Record, error)

	// Delete removes records by ID. Returns core.ErrNotFound if any of the
	// IDs does not exist.
	Delete(ctx context.Context, ids ...string) error

	// Scan visits every record in the table. The callback returns false to
	// stop early. Records are visited in undefined order.
	Scan(ctx context.Context, fn func(record *core.Record) (bool, error)) error

	// VectorQuery returns the k records most similar to the query vector,
	// ordered by cosine similarity descending. It consults the table's
	// vector index when one exists and silently falls back to a full scan
	// otherwise; an unavailable index is never an error.
	VectorQuery(ctx context.Context, vector []float32, k int) ([]*core.SearchResult, error)

	// BuildVectorIndex rebuilds the table's vector index wholesale and swaps
	// it in atomically. A failed build leaves the previous index intact and
	// queryable.
	BuildVectorIndex(ctx context.Context, kind core.IndexKind, partitions int) error

	// BuildScalarIndex builds an index over a metadata column.
	// Returns core.ErrNotFound if the column does not occur in the table.
	BuildScalarIndex(ctx context.Context, column string, kind core.ScalarIndexKind) error

	// DistinctCount reports the distinct-value cardinality of a metadata column.
	DistinctCount(ctx context.Context, column string) (int, error)

	// MetadataColumns lists the metadata keys present in the table.
	MetadataColumns(ctx context.Context) ([]string, error)

	// Compact merges storage fragments and removes stale versions.
	Compact(ctx context.Context) error

	// Close releases handle-scoped resources. The table itself is owned by
	// the store and survives handle closure.
	Close() error
}

// VectorIndexMeta describes the table's vector index, if any.
// At most one vector index exists per table; rebuilds supersede it wholesale.
type VectorIndexMeta struct {
	Kind            core.IndexKind
	Partitions      int
	RowCountAtBuild uint64
	BuiltAtMicros   int64
	SnapshotPath    string
}

// ScalarIndexMeta describes one scalar index over a metadata column.
type ScalarIndexMeta struct {
	Column string
	Kind   core.ScalarIndexKind
}

// TableMeta is the persisted descriptor of a table.
type TableMeta struct {
	Name            string
	Dimension       int
	RowCount        uint64
	FragmentCount   uint32
	CreatedAtMicros int64
	VectorIndex     VectorIndexMeta
	ScalarIndexes   []ScalarIndexMeta
}
