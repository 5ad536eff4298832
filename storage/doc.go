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

// Package storage defines the three stores lexsync keeps consistent.
//
// The stores are independently owned and have no shared transaction:
//
//   - BlobStore: raw document bytes, the single source of truth for content
//   - MetadataStore: relational document records keyed by ID and FilePath
//   - SearchIndex: a denormalized projection rebuilt from MetadataStore
//
// A document may be visible in BlobStore before MetadataStore, and in
// MetadataStore before SearchIndex. The reconcile package repairs that lag.
//
// # Implementations
//
//   - storage/minio: S3-compatible BlobStore
//   - storage/gcs: Google Cloud Storage BlobStore
//   - storage/postgres: gorm MetadataStore (table legal_documents)
//   - storage/badger: embedded SearchIndex
//   - storage/memory: in-process BlobStore and MetadataStore
//
// # Constructor Return Type Pattern
//
// Public constructors return the interface, not the concrete type:
//
//	blobs, err := minio.NewBlobStore(cfg)  // returns storage.BlobStore
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
