// Package memory provides in-process BlobStore and MetadataStore
// implementations for tests and single-run tooling.
package memory
