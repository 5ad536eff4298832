package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/extract"
	"github.com/poiesic/lexsync/storage"
)

const (
	DefaultBatchSize  = 10
	DefaultBatchDelay = 2 * time.Second
)

// Catalog is the part of the catalog connector the pipeline uses.
type Catalog interface {
	Search(ctx context.Context, filters core.SearchFilters) ([]core.CatalogItem, error)
	Download(ctx context.Context, item core.CatalogItem) ([]byte, error)
}

// Pipeline orchestrates document ingestion across the three stores.
type Pipeline struct {
	catalog    Catalog
	blobs      storage.BlobStore
	metadata   storage.MetadataStore
	index      storage.SearchIndex
	extractor  extract.Extractor
	summarizer ai.Summarizer

	pool           *ants.Pool
	batchSize      int
	batchDelay     time.Duration
	minTextLength  int
	summaryLimiter *rate.Limiter
	now            func() time.Time
	logger         *slog.Logger

	claimsMu sync.Mutex
	claims   map[string]struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets how many items run concurrently in one batch.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithBatchDelay sets the pause between batches. Default is DefaultBatchDelay.
func WithBatchDelay(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("batch delay must not be negative, got %s", d)
		}
		p.batchDelay = d
		return nil
	}
}

// WithMinTextLength sets the meaningful-character threshold below which OCR
// is attempted. Default is extract.DefaultMinLength.
func WithMinTextLength(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("min text length must be positive, got %d", n)
		}
		p.minTextLength = n
		return nil
	}
}

// WithSummaryInterval spaces summarizer calls at least d apart across all
// workers. Zero disables the per-item throttle.
func WithSummaryInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			p.summaryLimiter = nil
			return nil
		}
		p.summaryLimiter = rate.NewLimiter(rate.Every(d), 1)
		return nil
	}
}

// WithClock replaces time.Now, which stamps blob keys.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			now = time.Now
		}
		p.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The catalog may be nil;
// without one only uploads, backfills and retries are available.
func NewPipeline(
	catalog Catalog,
	blobs storage.BlobStore,
	metadata storage.MetadataStore,
	index storage.SearchIndex,
	extractor extract.Extractor,
	summarizer ai.Summarizer,
	opts ...Option,
) (*Pipeline, error) {
	switch {
	case blobs == nil:
		return nil, ErrBlobStoreRequired
	case metadata == nil:
		return nil, ErrMetadataStoreRequired
	case index == nil:
		return nil, ErrSearchIndexRequired
	case extractor == nil:
		return nil, ErrExtractorRequired
	case summarizer == nil:
		return nil, ErrSummarizerRequired
	}

	p := &Pipeline{
		catalog:       catalog,
		blobs:         blobs,
		metadata:      metadata,
		index:         index,
		extractor:     extractor,
		summarizer:    summarizer,
		batchSize:     DefaultBatchSize,
		batchDelay:    DefaultBatchDelay,
		minTextLength: extract.DefaultMinLength,
		now:           time.Now,
		logger:        slog.Default(),
		claims:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.batchSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// claim reserves a dedup key for the duration of one item so that concurrent
// items with the same name cannot both pass the duplicate check.
func (p *Pipeline) claim(key string) bool {
	p.claimsMu.Lock()
	defer p.claimsMu.Unlock()
	if _, taken := p.claims[key]; taken {
		return false
	}
	p.claims[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key string) {
	p.claimsMu.Lock()
	defer p.claimsMu.Unlock()
	delete(p.claims, key)
}
