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

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/strata-db/strata/ai"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

// Config holds configuration for the re-embedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch.
	BatchSize int

	// ReportInterval is how often to report progress, in records.
	ReportInterval int

	// MaxRetries is the maximum number of attempts for embedding calls.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates re-embedding every record in a table.
type Reembedder struct {
	table     storage.Table
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
}

// NewReembedder creates a reembedder over table using embedder. progress
// is where progress output is written, typically os.Stderr.
func NewReembedder(table storage.Table, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if table == nil {
		return nil, ErrTableRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Reembedder{
		table:     table,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(table, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewRecordIterator(table, config.BatchSize),
	}, nil
}

// Run re-embeds every record in the table, reporting progress along the
// way. The table's vector index is not rebuilt here; run index maintenance
// afterwards so queries rank against the new vectors.
func (r *Reembedder) Run(ctx context.Context) error {
	stats, err := r.table.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table stats: %w", err)
	}

	if stats.RowCount == 0 {
		fmt.Fprintf(r.progress, "No records found in table %q (0 records)\n", r.table.Name())
		return nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d records (batch size: %d)\n",
		stats.RowCount, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, stats.RowCount, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(records []*core.Record) error {
		if err := r.processor.Process(ctx, records); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(records)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d records in %v (%.1f records/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return nil
}
