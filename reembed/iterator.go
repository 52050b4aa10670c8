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

	"github.com/strata-db/strata/core"
	"github.com/strata-db/strata/storage"
)

// DefaultBatchSize is the default number of records per batch.
const DefaultBatchSize = 100

// RecordIterator streams a table's records in batches. Unlike a full table
// load, only one batch is held in memory at a time.
type RecordIterator struct {
	table     storage.Table
	batchSize int
}

// NewRecordIterator creates an iterator over table. A non-positive
// batchSize falls back to the default.
func NewRecordIterator(table storage.Table, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		table:     table,
		batchSize: batchSize,
	}
}

// ForEach visits every record in the table, calling fn once per full batch
// and once more for the final partial batch. Iteration stops on the first
// error from fn. Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.Record) error) error {
	batch := make([]*core.Record, 0, it.batchSize)

	err := it.table.Scan(ctx, func(record *core.Record) (bool, error) {
		batch = append(batch, record)
		if len(batch) < it.batchSize {
			return true, nil
		}
		if err := fn(batch); err != nil {
			return false, err
		}
		batch = batch[:0]
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
