// Package reindex rebuilds the search index from the metadata store.
//
// Records are read in pages, projected and upserted in batches with retry
// and exponential backoff, and progress is logged through slog. Because the
// projection reads only the record, a rebuild never loses data.
package reindex
