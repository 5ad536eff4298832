// Package api exposes manual uploads and the read paths over HTTP.
//
// Routes:
//
//	POST /documents        multipart upload (field "file"), ingested synchronously
//	GET  /documents        paged record listing
//	GET  /documents/:id    one record
//	GET  /search           ranked, faceted full-text search
//	GET  /suggest          title completions
//	POST /sync             one reconciliation pass (?dry_run=true for a report only)
//	GET  /healthz          liveness
//
// Search and suggest never fail because of the index: when it is
// unavailable they answer with an empty, degraded result.
package api
