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

package storage

import (
	"context"

	"github.com/poiesic/lexsync/core"
)

// BlobStore holds raw document bytes. It is the single source of truth for content.
type BlobStore interface {
	// Upload writes data under key and returns the key.
	// Keys are supplied by the caller; the store never generates them.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Download reads the full object.
	// Returns ErrNotFound if the key doesn't exist.
	Download(ctx context.Context, key string) ([]byte, error)

	// ReadPrefix reads at most n bytes from the start of the object.
	// Returns ErrNotFound if the key doesn't exist.
	ReadPrefix(ctx context.Context, key string, n int) ([]byte, error)

	// List returns every object whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]core.BlobObject, error)

	// Delete removes the object. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}

// MetadataStore provides operations for managing document records.
type MetadataStore interface {
	// Create inserts a new record.
	// Sets CreatedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if a record with the same ID or FilePath exists.
	Create(ctx context.Context, record *core.DocumentRecord) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*core.DocumentRecord, error)

	// GetByPath retrieves a record by its blob key.
	// Returns ErrNotFound if the record doesn't exist.
	GetByPath(ctx context.Context, filePath string) (*core.DocumentRecord, error)

	// FindByNormalizedName returns the first record with the given dedup key.
	// Returns ErrNotFound if none exists.
	FindByNormalizedName(ctx context.Context, normalized string) (*core.DocumentRecord, error)

	// Update replaces an existing record and bumps UpdatedAt.
	// Returns ErrNotFound if it doesn't exist and core.ErrInvalidTransition
	// if the status change is not allowed.
	Update(ctx context.Context, record *core.DocumentRecord) error

	// UpdateStatus changes only the status of a record.
	UpdateStatus(ctx context.Context, id string, status core.Status) error

	// List returns records ordered by creation time, then ID.
	List(ctx context.Context, offset, limit int) ([]*core.DocumentRecord, error)

	// ListByStatus returns all records with the given status.
	ListByStatus(ctx context.Context, status core.Status) ([]*core.DocumentRecord, error)

	// Paths returns the file_path to ID mapping of every record.
	Paths(ctx context.Context) (map[string]string, error)

	// Close releases resources.
	Close() error
}

// SearchIndex is the query-only projection of the metadata store.
type SearchIndex interface {
	// EnsureSchema creates the index schema if it is absent. Every other
	// method calls it implicitly.
	EnsureSchema(ctx context.Context) error

	// Upsert inserts or replaces the document with doc.ID.
	Upsert(ctx context.Context, doc core.IndexDocument) error

	// Get retrieves an indexed document.
	// Returns ErrNotFound if the document isn't indexed.
	Get(ctx context.Context, id string) (*core.IndexDocument, error)

	// Delete removes a document. Deleting a missing ID succeeds.
	Delete(ctx context.Context, id string) error

	// IDs returns every indexed document ID.
	IDs(ctx context.Context) ([]string, error)

	// Search runs a ranked, faceted full-text query.
	Search(ctx context.Context, query Query) (*SearchResult, error)

	// Suggest returns up to limit distinct titles completing prefix.
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)

	// Close releases resources.
	Close() error
}
