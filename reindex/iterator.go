// Copyright 2025 Poiesic Systems
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

package reindex

import (
	"context"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator pages through every document record.
type RecordIterator struct {
	metadata  storage.MetadataStore
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch per page (DefaultBatchSize if <= 0)
func NewRecordIterator(metadata storage.MetadataStore, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		metadata:  metadata,
		batchSize: batchSize,
	}
}

// ForEach calls fn with each page of records in creation order.
// Iteration stops on the first error from fn or the store.
// Context cancellation is checked between pages.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.DocumentRecord) error) error {
	for offset := 0; ; offset += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := it.metadata.List(ctx, offset, it.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		if len(records) < it.batchSize {
			return nil
		}
	}
}
