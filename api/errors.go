package api

import "errors"

var (
	// ErrIngestorRequired is returned when no ingestor is provided.
	ErrIngestorRequired = errors.New("ingestor required")

	// ErrStoreRequired is returned when the metadata store or index is missing.
	ErrStoreRequired = errors.New("metadata store and search index required")
)
