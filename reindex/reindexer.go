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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

// Config holds configuration for a rebuild.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per upsert
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Prune removes index entries that have no metadata record.
	Prune bool
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

// Result summarizes a rebuild.
type Result struct {
	Total   int           `json:"total"`
	Indexed int           `json:"indexed"`
	Failed  int           `json:"failed"`
	Pruned  int           `json:"pruned"`
	Elapsed time.Duration `json:"elapsed"`
}

// Reindexer rebuilds the search index from the metadata store.
type Reindexer struct {
	metadata  storage.MetadataStore
	index     storage.SearchIndex
	config    *Config
	processor *BatchProcessor
	iterator  *RecordIterator
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer. Progress is reported through logger,
// or slog.Default() when it is nil.
func NewReindexer(metadata storage.MetadataStore, index storage.SearchIndex, config *Config, logger *slog.Logger) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default().With("component", "reindex")
	}
	return &Reindexer{
		metadata:  metadata,
		index:     index,
		config:    config,
		processor: NewBatchProcessor(index, metadata, config.MaxRetries, config.RetryDelay),
		iterator:  NewRecordIterator(metadata, config.BatchSize),
		logger:    logger,
	}
}

// Run projects every record into the index. Records that fail after all
// retries are counted and reported with ErrIncomplete; the remaining records
// are still processed.
func (r *Reindexer) Run(ctx context.Context) (*Result, error) {
	paths, err := r.metadata.Paths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	res := &Result{Total: len(paths)}
	if err := r.index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare index: %w", err)
	}

	r.logger.Info("starting reindex", "records", res.Total, "batch_size", r.config.BatchSize)

	tracker := NewProgressTracker(r.logger, res.Total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(records []*core.DocumentRecord) error {
		indexed, err := r.processor.Process(ctx, records)
		res.Indexed += indexed
		res.Failed += len(records) - indexed
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.logger.Warn("batch partially failed", "error", err)
		}
		tracker.Increment(len(records))
		return nil
	})
	if err != nil {
		return res, err
	}

	if r.config.Prune {
		pruned, err := r.prune(ctx, paths)
		res.Pruned = pruned
		if err != nil {
			return res, err
		}
	}

	if res.Total > 0 {
		tracker.Finish()
	}
	res.Elapsed = tracker.Elapsed()
	r.logger.Info("reindex complete",
		"indexed", res.Indexed, "failed", res.Failed, "pruned", res.Pruned, "total", res.Total,
		"elapsed", res.Elapsed.Round(time.Millisecond))

	if res.Failed > 0 {
		return res, fmt.Errorf("%w: %d of %d records failed", ErrIncomplete, res.Failed, res.Total)
	}
	return res, nil
}

// prune deletes index entries whose record no longer exists.
func (r *Reindexer) prune(ctx context.Context, paths map[string]string) (int, error) {
	known := make(map[string]struct{}, len(paths))
	for _, id := range paths {
		known[id] = struct{}{}
	}
	ids, err := r.index.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list index: %w", err)
	}
	pruned := 0
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if err := r.index.Delete(ctx, id); err != nil {
			return pruned, fmt.Errorf("failed to prune %s: %w", id, err)
		}
		pruned++
	}
	return pruned, nil
}
