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
	"time"

	"github.com/strata-db/strata/ai"
	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

// BatchProcessor embeds one batch of records and writes the refreshed
// vectors back to the table.
type BatchProcessor struct {
	table          storage.Table
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a batch processor. Embedding calls are retried
// up to maxRetries times with exponential backoff starting at
// retryBaseDelay.
func NewBatchProcessor(table storage.Table, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		table:          table,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the records' content and upserts them with the new
// vectors. Records keep their IDs, so the write is an in-place update.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(records) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(embeddings))
	}

	dimension := bp.table.Dimension()
	for i := range records {
		if len(embeddings[i]) != dimension {
			return fmt.Errorf("%w: model produced %d, table expects %d",
				core.ErrDimensionMismatch, len(embeddings[i]), dimension)
		}
		records[i].Vector = embeddings[i]
	}

	// Write normalizes the vectors before storage.
	if _, err := bp.table.Write(ctx, records...); err != nil {
		return fmt.Errorf("failed to update records: %w", err)
	}
	return nil
}
