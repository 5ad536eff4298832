package ingestion

import "errors"

var (
	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrMetadataStoreRequired is returned when a metadata store is not provided.
	ErrMetadataStoreRequired = errors.New("metadata store required")

	// ErrSearchIndexRequired is returned when a search index is not provided.
	ErrSearchIndexRequired = errors.New("search index required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrSummarizerRequired is returned when a summarizer is not provided.
	ErrSummarizerRequired = errors.New("summarizer required")

	// ErrCatalogRequired is returned by Run when the pipeline has no catalog.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrCatalogSearch wraps a failed catalog query.
	ErrCatalogSearch = errors.New("catalog search failed")

	// ErrDuplicate is returned when a document with the same normalized
	// file name (or blob key) is already recorded.
	ErrDuplicate = errors.New("document already ingested")

	// ErrEmptyDocument is returned for uploads without content.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrPersistence wraps a persistence failure. The item is marked failed.
	ErrPersistence = errors.New("persisting document failed")

	// ErrIndex wraps a search index failure. The record stays in processing
	// until the next reconciliation pass.
	ErrIndex = errors.New("indexing document failed")
)
