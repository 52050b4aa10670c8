// Copyright 2025 Strata Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

const (
	// MinRowsForIndex is the row count below which a table carries no
	// vector index and queries scan flat.
	MinRowsForIndex = 100

	// VectorsPerPartition sizes IVF partitioning from row count.
	VectorsPerPartition = 256

	// MinPartitions and MaxPartitions clamp the computed partition count.
	MinPartitions = 32
	MaxPartitions = 512

	// HNSWMaxRows is the scale cutover: below it HNSW, at or above it
	// IVF_FLAT.
	HNSWMaxRows = 10000

	// BitmapMaxCardinality is the distinct-value count below which a
	// scalar index uses bitmaps instead of an ordered index.
	BitmapMaxCardinality = 100

	// maintenanceGrowthFactor defines the next maintenance threshold: an
	// existing index is rebuilt once the table has grown past this
	// multiple of the rows it was built over.
	maintenanceGrowthFactor = 2

	defaultPoolSize = 4
)

// Manager owns index maintenance policy for all tables. Decisions are
// pure functions of table scale; execution is serialized per table and
// conflicting calls fail fast with core.ErrMaintenanceConflict.
type Manager struct {
	logger      *slog.Logger
	pool        *ants.Pool
	locks       sync.Map // table name -> *sync.Mutex
	autoIndexAt int
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithAutoIndexAt sets the row-count threshold that arms automatic index
// maintenance. Zero disables it; indexes are then built only explicitly.
func WithAutoIndexAt(rows int) Option {
	return func(m *Manager) error {
		if rows < 0 {
			return fmt.Errorf("auto-index threshold must not be negative, got %d", rows)
		}
		m.autoIndexAt = rows
		return nil
	}
}

// WithPoolSize sets the number of workers running background maintenance.
func WithPoolSize(size int) Option {
	return func(m *Manager) error {
		if size < 1 {
			return fmt.Errorf("pool size must be at least 1, got %d", size)
		}
		if m.pool != nil {
			m.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		m.pool = pool
		return nil
	}
}

// NewManager creates an index manager with a background worker pool.
func NewManager(opts ...Option) (*Manager, error) {
	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		logger: slog.Default(),
		pool:   pool,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			m.pool.Release()
			return nil, err
		}
	}
	return m, nil
}

// Close drains and releases the background pool.
func (m *Manager) Close() {
	m.pool.Release()
}

// ChooseIndexKind selects the vector index kind for a table of the given
// size.
func ChooseIndexKind(rowCount int) core.IndexKind {
	switch {
	case rowCount < MinRowsForIndex:
		return core.IndexKindNone
	case rowCount < HNSWMaxRows:
		return core.IndexKindHNSW
	default:
		return core.IndexKindIVFFlat
	}
}

// ComputePartitions sizes IVF partitioning for a table of the given size.
func ComputePartitions(rowCount int) int {
	partitions := rowCount / VectorsPerPartition
	if partitions < MinPartitions {
		return MinPartitions
	}
	if partitions > MaxPartitions {
		return MaxPartitions
	}
	return partitions
}

// ChooseScalarKind selects the scalar index kind for a column with the
// given distinct-value cardinality.
func ChooseScalarKind(cardinality int) core.ScalarIndexKind {
	if cardinality < BitmapMaxCardinality {
		return core.ScalarIndexBitmap
	}
	return core.ScalarIndexBTree
}

// EnsureIndex brings the table's vector index in line with its current
// scale. Tables below MinRowsForIndex stay unindexed and never error.
// Rebuilds are idempotent: an existing index of the right kind is kept
// until the table grows past the next maintenance threshold.
func (m *Manager) EnsureIndex(ctx context.Context, table storage.Table) error {
	unlock, err := m.tryLock(table.Name())
	if err != nil {
		return err
	}
	defer unlock()

	stats, err := table.Stats(ctx)
	if err != nil {
		return err
	}

	kind := ChooseIndexKind(stats.RowCount)
	if kind == core.IndexKindNone {
		// Too small to index; the flat scan is exact and fast enough.
		return nil
	}

	meta, err := table.Meta(ctx)
	if err != nil {
		return err
	}
	if meta.VectorIndex.Kind == kind &&
		uint64(stats.RowCount) < meta.VectorIndex.RowCountAtBuild*maintenanceGrowthFactor {
		return nil
	}

	partitions := ComputePartitions(stats.RowCount)
	if err := table.BuildVectorIndex(ctx, kind, partitions); err != nil {
		m.logger.Error("index build failed",
			"table", table.Name(), "kind", kind.String(), "err", err)
		return err
	}
	return nil
}

// CreateScalarIndex builds a scalar index over one metadata column,
// picking the kind from the column's cardinality.
func (m *Manager) CreateScalarIndex(ctx context.Context, table storage.Table, column string) (core.ScalarIndexKind, error) {
	unlock, err := m.tryLock(table.Name())
	if err != nil {
		return 0, err
	}
	defer unlock()

	cardinality, err := table.DistinctCount(ctx, column)
	if err != nil {
		return 0, err
	}

	kind := ChooseScalarKind(cardinality)
	if err := table.BuildScalarIndex(ctx, column, kind); err != nil {
		return 0, err
	}
	return kind, nil
}

// AutoIndexIfNeeded invokes EnsureIndex once the table has crossed the
// configured auto-index threshold. This is the only automatic trigger for
// vector index creation.
func (m *Manager) AutoIndexIfNeeded(ctx context.Context, table storage.Table) error {
	if m.autoIndexAt <= 0 {
		return nil
	}
	stats, err := table.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.RowCount < m.autoIndexAt {
		return nil
	}
	return m.EnsureIndex(ctx, table)
}

// ScheduleAfterWrite runs best-effort index maintenance in the background
// after a write batch commits: scalar indexes are created for any of the
// batch's metadata columns that lack one, then the threshold-based vector
// index check runs. Existing scalar indexes are kept current synchronously
// by the write path and are not rebuilt here. Failures and maintenance
// conflicts are logged and swallowed; they must never fail the write that
// triggered them.
func (m *Manager) ScheduleAfterWrite(table storage.Table, columns []string) {
	err := m.pool.Submit(func() {
		ctx := context.Background()
		if err := m.ensureScalarIndexes(ctx, table, columns); err != nil {
			m.logger.Debug("post-write scalar index maintenance skipped",
				"table", table.Name(), "err", err)
		}
		if err := m.AutoIndexIfNeeded(ctx, table); err != nil {
			m.logger.Debug("post-write index maintenance skipped",
				"table", table.Name(), "err", err)
		}
	})
	if err != nil {
		m.logger.Warn("could not schedule post-write maintenance",
			"table", table.Name(), "err", err)
	}
}

// ensureScalarIndexes builds scalar indexes for the given columns where the
// table has none yet. Columns that already carry an index are skipped.
func (m *Manager) ensureScalarIndexes(ctx context.Context, table storage.Table, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	meta, err := table.Meta(ctx)
	if err != nil {
		return err
	}
	indexed := make(map[string]struct{}, len(meta.ScalarIndexes))
	for _, idx := range meta.ScalarIndexes {
		indexed[idx.Column] = struct{}{}
	}
	for _, column := range columns {
		if _, ok := indexed[column]; ok {
			continue
		}
		if _, err := m.CreateScalarIndex(ctx, table, column); err != nil {
			return err
		}
	}
	return nil
}

// Compact merges storage fragments and prunes stale versions. Explicit
// only; compaction rewrites data and is never triggered automatically.
func (m *Manager) Compact(ctx context.Context, table storage.Table) error {
	unlock, err := m.tryLock(table.Name())
	if err != nil {
		return err
	}
	defer unlock()

	if err := table.Compact(ctx); err != nil {
		return err
	}
	m.logger.Info("table compacted", "table", table.Name())
	return nil
}

// tryLock acquires the table's maintenance lock without blocking.
func (m *Manager) tryLock(name string) (func(), error) {
	mu, _ := m.locks.LoadOrStore(name, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: table %q", core.ErrMaintenanceConflict, name)
	}
	return lock.Unlock, nil
}
