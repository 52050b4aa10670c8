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

package strata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strata-db/strata/ai"
	"github.com/strata-db/strata/ai/openai"
	"github.com/strata-db/strata/cache"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/index"
	"github.com/strata-db/strata/search"
	"github.com/strata-db/strata/storage"
	"github.com/strata-db/strata/storage/badger"
)

// DefaultDimension is the vector dimension used for tables created through
// the Database when none is configured. It matches the default embedding
// model's output.
const DefaultDimension = 768

// DefaultLimit is the result count used when a search is invoked with a
// non-positive limit.
const DefaultLimit = 10

// Database is the service root. It owns the storage backend, the cache
// layers, the index manager, the search engine and the AI provider, and
// exposes the public operation surface over them.
type Database struct {
	backend  *badger.Backend
	caches   *cache.Manager
	indexes  *index.Manager
	engine   *search.Engine
	provider ai.Provider
	logger   *slog.Logger

	dimension    int
	defaultLimit int
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig       *ai.Config
	provider       ai.Provider
	logger         *slog.Logger
	dimension      int
	defaultLimit   int
	autoIndexAt    int
	resultSize     int
	resultTTL      time.Duration
	structureBytes int
	scoreBytes     int64
	datasetSize    int
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider injects a pre-built AI provider, bypassing the OpenAI
// provider construction. The Database takes ownership and closes it.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithDatabaseLogger sets the logger shared by all components.
func WithDatabaseLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithDimension sets the vector dimension for tables created through
// the Database.
func WithDimension(dimension int) DatabaseOption {
	return func(o *databaseOptions) {
		o.dimension = dimension
	}
}

// WithDefaultLimit sets the result count used when a search request does
// not specify one.
func WithDefaultLimit(limit int) DatabaseOption {
	return func(o *databaseOptions) {
		o.defaultLimit = limit
	}
}

// WithAutoIndexAt sets the row count at which writes trigger automatic
// vector index creation. Zero disables automatic indexing.
func WithAutoIndexAt(rows int) DatabaseOption {
	return func(o *databaseOptions) {
		o.autoIndexAt = rows
	}
}

// WithSearchCache sets the search result cache capacity and TTL.
func WithSearchCache(maxSize int, ttl time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.resultSize = maxSize
		o.resultTTL = ttl
	}
}

// WithStructureCacheBytes bounds the resident size of cached index
// structures.
func WithStructureCacheBytes(maxBytes int) DatabaseOption {
	return func(o *databaseOptions) {
		o.structureBytes = maxBytes
	}
}

// WithScoreCacheBytes bounds the memoized score cache.
func WithScoreCacheBytes(maxBytes int64) DatabaseOption {
	return func(o *databaseOptions) {
		o.scoreBytes = maxBytes
	}
}

// WithDatasetCacheSize bounds the number of cached table handles.
func WithDatasetCacheSize(size int) DatabaseOption {
	return func(o *databaseOptions) {
		o.datasetSize = size
	}
}

// NewDatabase opens a database at filePath. An empty filePath opens an
// in-memory database, useful for tests and ephemeral workloads.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	caches, err := cache.NewManager(
		cache.WithDatasetCacheSize(options.datasetSize),
		cache.WithStructureCacheBytes(options.structureBytes),
		cache.WithResultCache(options.resultSize, options.resultTTL),
		cache.WithScoreCacheBytes(options.scoreBytes),
	)
	if err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, filePath == "",
		badger.WithLogger(logger),
		badger.WithStructureCache(caches.Structures),
	)
	if err != nil {
		caches.Close()
		return nil, err
	}

	indexes, err := index.NewManager(
		index.WithLogger(logger),
		index.WithAutoIndexAt(options.autoIndexAt),
	)
	if err != nil {
		backend.Close()
		caches.Close()
		return nil, err
	}

	engine, err := search.NewEngine(caches, search.WithLogger(logger))
	if err != nil {
		indexes.Close()
		backend.Close()
		caches.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			indexes.Close()
			backend.Close()
			caches.Close()
			return nil, err
		}
	}

	dimension := options.dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	defaultLimit := options.defaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}

	return &Database{
		backend:      backend,
		caches:       caches,
		indexes:      indexes,
		engine:       engine,
		provider:     provider,
		logger:       logger,
		dimension:    dimension,
		defaultLimit: defaultLimit,
	}, nil
}

func (db *Database) Close() error {
	db.indexes.Close()
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	db.caches.Close()
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Table returns a handle to the named table. Returns core.ErrNotFound if
// the table does not exist; tables come into existence on first write, so
// read and maintenance paths never create one as a side effect. Handles
// are cached.
func (db *Database) Table(ctx context.Context, name string) (storage.Table, error) {
	return db.caches.Datasets.GetOrOpen(ctx, name, func(ctx context.Context) (storage.Table, error) {
		return db.backend.OpenTable(ctx, name)
	})
}

// ensureTable opens the named table, creating it with the configured
// dimension when it does not exist yet. Write paths only.
func (db *Database) ensureTable(ctx context.Context, name string) (storage.Table, error) {
	return db.caches.Datasets.GetOrOpen(ctx, name, func(ctx context.Context) (storage.Table, error) {
		table, err := db.backend.OpenTable(ctx, name)
		if errors.Is(err, core.ErrNotFound) {
			return db.backend.CreateTable(ctx, name, db.dimension)
		}
		return table, err
	})
}

// TableNames lists the tables in the database.
func (db *Database) TableNames(ctx context.Context) ([]string, error) {
	return db.backend.TableNames(ctx)
}

// DropTable removes a table and all of its rows and indexes.
func (db *Database) DropTable(ctx context.Context, name string) error {
	if err := db.backend.DropTable(ctx, name); err != nil {
		return err
	}
	db.caches.Datasets.Invalidate(name)
	return nil
}

// Add embeds content, writes the resulting record and schedules
// best-effort index maintenance. The returned ID is content-derived.
func (db *Database) Add(ctx context.Context, tableName, content string, metadata map[string]string) (string, error) {
	vector, err := db.provider.Embedder().EmbedText(ctx, content)
	if err != nil {
		return "", fmt.Errorf("embedding content: %w", err)
	}
	record := &core.Record{
		Vector:   vector,
		Content:  content,
		Metadata: metadata,
	}
	written, err := db.AddRecords(ctx, tableName, record)
	if err != nil {
		return "", err
	}
	return written[0].ID, nil
}

// AddRecords writes pre-embedded records, creating the table on first
// write, and schedules best-effort index maintenance in the background.
func (db *Database) AddRecords(ctx context.Context, tableName string, records ...*core.Record) ([]*core.Record, error) {
	table, err := db.ensureTable(ctx, tableName)
	if err != nil {
		return nil, err
	}
	written, err := table.Write(ctx, records...)
	if err != nil {
		return nil, err
	}
	db.indexes.ScheduleAfterWrite(table, metadataColumns(written))
	return written, nil
}

// metadataColumns collects the distinct metadata keys across a batch.
func metadataColumns(records []*core.Record) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, record := range records {
		for key := range record.Metadata {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	return columns
}

// Get retrieves a single record by ID.
func (db *Database) Get(ctx context.Context, tableName, id string) (*core.Record, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return table.Get(ctx, id)
}

// Delete removes records by ID.
func (db *Database) Delete(ctx context.Context, tableName string, ids ...string) error {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return err
	}
	return table.Delete(ctx, ids...)
}

// Search runs a vector similarity search. A non-positive limit falls back
// to the configured default.
func (db *Database) Search(ctx context.Context, tableName string, vector []float32, limit int, opts *search.Options) ([]*core.SearchResult, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return db.engine.Search(ctx, table, vector, db.effectiveLimit(limit), opts)
}

// SearchText embeds the query text and runs a vector similarity search.
func (db *Database) SearchText(ctx context.Context, tableName, query string, limit int, opts *search.Options) ([]*core.SearchResult, error) {
	vector, err := db.provider.Embedder().EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return db.Search(ctx, tableName, vector, limit, opts)
}

// HybridSearch combines vector similarity with keyword scoring.
func (db *Database) HybridSearch(ctx context.Context, tableName string, vector []float32, keywords []string, limit int, opts *search.Options) ([]*core.SearchResult, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return db.engine.HybridSearch(ctx, table, vector, keywords, db.effectiveLimit(limit), opts)
}

// HybridSearchText embeds the query text and runs a hybrid search.
func (db *Database) HybridSearchText(ctx context.Context, tableName, query string, keywords []string, limit int, opts *search.Options) ([]*core.SearchResult, error) {
	vector, err := db.provider.Embedder().EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return db.HybridSearch(ctx, tableName, vector, keywords, limit, opts)
}

// CreateIndex builds or rebuilds the table's vector index, choosing the
// structure from the current row count.
func (db *Database) CreateIndex(ctx context.Context, tableName string) error {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return err
	}
	return db.indexes.EnsureIndex(ctx, table)
}

// AutoIndexIfNeeded builds a vector index if the table has crossed the
// configured automatic indexing threshold.
func (db *Database) AutoIndexIfNeeded(ctx context.Context, tableName string) error {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return err
	}
	return db.indexes.AutoIndexIfNeeded(ctx, table)
}

// CreateScalarIndex builds a scalar index over a metadata column, choosing
// bitmap or btree from the column's cardinality. Returns the chosen kind.
func (db *Database) CreateScalarIndex(ctx context.Context, tableName, column string) (core.ScalarIndexKind, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return 0, err
	}
	return db.indexes.CreateScalarIndex(ctx, table, column)
}

// Compact merges storage fragments and prunes stale versions.
func (db *Database) Compact(ctx context.Context, tableName string) error {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return err
	}
	return db.indexes.Compact(ctx, table)
}

// AnalyzeTableHealth reports fragmentation, index status and maintenance
// recommendations for a table.
func (db *Database) AnalyzeTableHealth(ctx context.Context, tableName string) (*core.HealthReport, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return db.indexes.AnalyzeTableHealth(ctx, table)
}

// SuggestPartitionColumn suggests the lowest-cardinality metadata column
// suitable as a partition key, or an empty string if none qualifies.
func (db *Database) SuggestPartitionColumn(ctx context.Context, tableName string) (string, error) {
	table, err := db.Table(ctx, tableName)
	if err != nil {
		return "", err
	}
	return db.indexes.SuggestPartitionColumn(ctx, table)
}

// InvalidateStructureCache drops a cached index structure by its snapshot
// path, including the storage layer's table-resident copy. The next query
// that needs it reloads from disk.
func (db *Database) InvalidateStructureCache(path string) {
	db.backend.InvalidateStructureCache(path)
}

// Provider returns the AI provider for callers that embed text themselves.
func (db *Database) Provider() ai.Provider {
	return db.provider
}

func (db *Database) effectiveLimit(limit int) int {
	if limit <= 0 {
		return db.defaultLimit
	}
	return limit
}
