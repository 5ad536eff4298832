// Package ingestion moves legal documents through the fetch, extract,
// summarize, persist and index stages.
//
// Work is grouped into fixed-size batches. One batch runs at a time, items
// within a batch run concurrently on a worker pool, and a fixed delay
// separates batches to respect external rate limits. Extraction and
// summarization failures degrade the record (empty text, sentinel summary)
// instead of failing it; only a persistence failure marks an item failed.
// Index failures leave the record in processing for the reconciler to repair.
//
// Per-item problems never abort a run. They are aggregated into
// core.IngestionStats; Run returns an error only for problems detected
// before the first batch starts.
package ingestion
