// Package reconcile restores agreement between the blob store, the metadata
// store and the search index.
//
// A pass takes an inventory of all three stores, backfills records for blobs
// that have none, re-projects records missing from the index, flags records
// whose blob is gone and finally deletes legacy placeholder blobs. Every
// repair is an idempotent upsert keyed by a stable id, so a second pass over
// unchanged stores finds nothing to do and passes may run alongside
// ingestion.
//
// Records are never deleted by a pass. Placeholder deletion is the only
// destructive step and only touches blobs whose content carries the marker.
package reconcile
