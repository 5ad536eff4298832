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

package lexsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/ai/mock"
	"github.com/poiesic/lexsync/ai/openai"
	"github.com/poiesic/lexsync/ai/vertex"
	"github.com/poiesic/lexsync/catalog"
	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/extract"
	"github.com/poiesic/lexsync/extract/local"
	"github.com/poiesic/lexsync/extract/remote"
	"github.com/poiesic/lexsync/extract/tesseract"
	"github.com/poiesic/lexsync/ingestion"
	"github.com/poiesic/lexsync/reconcile"
	"github.com/poiesic/lexsync/retry"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/storage/badger"
	"github.com/poiesic/lexsync/storage/gcs"
	"github.com/poiesic/lexsync/storage/memory"
	"github.com/poiesic/lexsync/storage/minio"
	"github.com/poiesic/lexsync/storage/postgres"
)

// System owns the blob store, metadata store and search index named by a
// configuration, and builds the pipeline and reconciliation engine over them.
type System struct {
	cfg      *config.Config
	logger   *slog.Logger
	blobs    storage.BlobStore
	metadata storage.MetadataStore
	index    storage.SearchIndex
	closers  []io.Closer
}

// Close releases the metadata store and search index.
func (s *System) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Open validates cfg and opens the backends it names. A nil logger uses
// slog.Default().
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*System, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &System{cfg: cfg, logger: logger}
	var err error
	if s.blobs, err = openBlobStore(ctx, cfg.Blob, logger); err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	if s.metadata, err = openMetadataStore(cfg.Database, logger); err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	s.closers = append(s.closers, s.metadata)

	indexOpts := []badger.Option{badger.WithLogger(logger.With("component", "index"))}
	if cfg.Index.InMemory {
		s.index, err = badger.NewMemorySearchIndex(indexOpts...)
	} else {
		s.index, err = badger.OpenSearchIndex(cfg.Index.Path, indexOpts...)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	s.closers = append(s.closers, s.index)
	return s, nil
}

func (s *System) Config() *config.Config { return s.cfg }

func (s *System) Blobs() storage.BlobStore { return s.blobs }

func (s *System) Metadata() storage.MetadataStore { return s.metadata }

func (s *System) Index() storage.SearchIndex { return s.index }

func openBlobStore(ctx context.Context, cfg config.BlobConfig, logger *slog.Logger) (storage.BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		return minio.NewBlobStore(ctx, minio.Config{
			Endpoint:     cfg.Endpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			UseSSL:       cfg.UseSSL,
			CreateBucket: cfg.CreateBucket,
		}, logger)
	case "gcs":
		return gcs.NewBlobStore(ctx, gcs.Config{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		}, logger)
	case "memory":
		return memory.NewBlobStore(), nil
	}
	return nil, fmt.Errorf("%w: unknown blob backend %q", config.ErrInvalidConfig, cfg.Backend)
}

func openMetadataStore(cfg config.DatabaseConfig, logger *slog.Logger) (storage.MetadataStore, error) {
	opts := []postgres.Option{
		postgres.WithLogger(logger.With("component", "metadata")),
		postgres.WithAutoMigrate(cfg.AutoMigrate),
	}
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN, opts...)
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, err
		}
		return postgres.New(db, opts...)
	case "memory":
		return memory.NewMetadataStore(), nil
	}
	return nil, fmt.Errorf("%w: unknown database driver %q", config.ErrInvalidConfig, cfg.Driver)
}

// newSummarizer builds the configured summarization client. The returned closer
// may be nil.
func newSummarizer(ctx context.Context, cfg config.AIConfig) (ai.Summarizer, io.Closer, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(cfg.Host),
		ai.WithModel(cfg.Model),
		ai.WithToken(cfg.Token),
		ai.WithTimeout(cfg.Timeout),
		ai.WithMaxInputChars(cfg.MaxInputChars),
	)
	switch cfg.Provider {
	case "openai":
		s, err := openai.NewSummarizer(aiConfig)
		return s, nil, err
	case "vertex":
		aiConfig = ai.NewConfig(
			ai.WithModel(cfg.Model),
			ai.WithVertex(cfg.Project, cfg.Location),
			ai.WithTimeout(cfg.Timeout),
			ai.WithMaxInputChars(cfg.MaxInputChars),
		)
		s, err := vertex.NewSummarizer(ctx, aiConfig)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "mock":
		return mock.NewMockSummarizer(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown ai provider %q", config.ErrInvalidConfig, cfg.Provider)
}

// newExtractor chains the remote service (when configured), the local
// text-layer readers and tesseract OCR (when enabled).
func newExtractor(cfg config.ExtractConfig, logger *slog.Logger) (extract.Extractor, error) {
	var chain extract.Chain
	if cfg.RemoteURL != "" {
		r, err := remote.New(cfg.RemoteURL, remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
	}
	chain = append(chain, local.New(logger))
	if cfg.OCR {
		chain = append(chain, tesseract.New(
			tesseract.WithLanguages(cfg.OCRLanguages...),
			tesseract.WithLogger(logger),
		))
	}
	return chain, nil
}

// NewCatalog builds the catalog connector from cfg.
func NewCatalog(cfg config.CatalogConfig, logger *slog.Logger) (*catalog.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	if cfg.Timeout > 0 {
		policy.AttemptTimeout = cfg.Timeout
	}
	return catalog.New(catalog.Config{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		ProxyURL:          cfg.ProxyURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Policy:            policy,
	}, catalog.WithLogger(logger))
}

// NewPipeline assembles the ingestion pipeline over the opened stores. cat
// may be nil when only uploads, backfills and retries are needed. The
// returned func releases the worker pool and the summarizer.
func (s *System) NewPipeline(ctx context.Context, cat ingestion.Catalog) (*ingestion.Pipeline, func(), error) {
	summarizer, closer, err := newSummarizer(ctx, s.cfg.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	extractor, err := newExtractor(s.cfg.Extract, s.logger.With("component", "extract"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	minText := s.cfg.Extract.MinTextLength
	if minText <= 0 {
		minText = extract.DefaultMinLength
	}
	p, err := ingestion.NewPipeline(cat, s.blobs, s.metadata, s.index, extractor, summarizer,
		ingestion.WithBatchSize(s.cfg.Ingestion.BatchSize),
		ingestion.WithBatchDelay(s.cfg.Ingestion.BatchDelay),
		ingestion.WithMinTextLength(minText),
		ingestion.WithSummaryInterval(s.cfg.Ingestion.SummaryInterval),
		ingestion.WithLogger(s.logger.With("component", "ingestion")),
	)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, nil, err
	}
	release := func() {
		p.Release()
		if closer != nil {
			closer.Close()
		}
	}
	return p, release, nil
}

// NewEngine builds a reconciliation engine that repairs through p.
func (s *System) NewEngine(p *ingestion.Pipeline) (*reconcile.Engine, error) {
	return reconcile.NewEngine(s.blobs, s.metadata, s.index, p,
		reconcile.WithClassifier(reconcile.MarkerClassifier{
			Marker:      s.cfg.Reconcile.Marker,
			PrefixBytes: s.cfg.Reconcile.PrefixBytes,
		}),
		reconcile.WithLogger(s.logger.With("component", "reconcile")),
	)
}
