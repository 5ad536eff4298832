package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/retry"
	"github.com/poiesic/lexsync/storage"
)

// BatchProcessor projects batches of records into the search index.
type BatchProcessor struct {
	index          storage.SearchIndex
	metadata       storage.MetadataStore
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per upsert
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index storage.SearchIndex, metadata storage.MetadataStore, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		index:          index,
		metadata:       metadata,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process upserts the projection of every record. Records still marked
// processing become indexed once their projection is stored. Failures are
// collected per record; the returned error joins them.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.DocumentRecord) (int, error) {
	var errs []error
	indexed := 0
	for _, rec := range records {
		doc := core.Project(rec)
		err := retry.RetryWithBackoff(ctx, func() error {
			return bp.index.Upsert(ctx, doc)
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return indexed, ctxErr
			}
			errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			continue
		}
		indexed++
		if rec.Status == core.StatusProcessing {
			if err := bp.metadata.UpdateStatus(ctx, rec.ID, core.StatusIndexed); err != nil {
				errs = append(errs, fmt.Errorf("%s: status: %w", rec.ID, err))
			}
		}
	}
	return indexed, errors.Join(errs...)
}
