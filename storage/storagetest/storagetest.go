// Package storagetest holds behaviour tests shared by every storage
// implementation.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRecord builds a valid processing record stored under key.
func NewRecord(key string) *core.DocumentRecord {
	name := core.FileNameFromKey(key)
	text := "text of " + name
	return &core.DocumentRecord{
		ID:             core.DocumentID(key),
		Title:          core.TitleFromFileName(name),
		FileName:       name,
		NormalizedName: core.NormalizeFileName(name),
		FilePath:       key,
		FileType:       core.FileTypeOf(name, ""),
		Status:         core.StatusProcessing,
		PIIStatus:      core.PIIUnchecked,
		ExtractedText:  &text,
		Metadata:       map[string]any{core.MetaSource: core.SourceUpload},
	}
}

// RunBlobStoreTests exercises the BlobStore contract.
func RunBlobStoreTests(t *testing.T, newStore func(t *testing.T) storage.BlobStore) {
	ctx := context.Background()

	t.Run("upload and download", func(t *testing.T) {
		s := newStore(t)
		key, err := s.Upload(ctx, "documents/1_a.pdf", []byte("%PDF-1.7 body"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, "documents/1_a.pdf", key)

		data, err := s.Download(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.7 body"), data)
	})

	t.Run("read prefix", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Upload(ctx, "documents/2_b.txt", []byte("0123456789"), "text/plain")
		require.NoError(t, err)

		data, err := s.ReadPrefix(ctx, "documents/2_b.txt", 4)
		require.NoError(t, err)
		assert.Equal(t, []byte("0123"), data)

		data, err = s.ReadPrefix(ctx, "documents/2_b.txt", 100)
		require.NoError(t, err)
		assert.Equal(t, []byte("0123456789"), data)
	})

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Download(ctx, "documents/missing.pdf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list by prefix", func(t *testing.T) {
		s := newStore(t)
		for _, key := range []string{"documents/2_b.pdf", "documents/1_a.pdf", "legacy/c.txt"} {
			_, err := s.Upload(ctx, key, []byte(key), "")
			require.NoError(t, err)
		}
		objs, err := s.List(ctx, "documents/")
		require.NoError(t, err)
		require.Len(t, objs, 2)
		assert.Equal(t, "documents/1_a.pdf", objs[0].Key)
		assert.Equal(t, "documents/2_b.pdf", objs[1].Key)
		assert.Equal(t, int64(len("documents/1_a.pdf")), objs[0].Size)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Upload(ctx, "documents/3_c.pdf", []byte("x"), "")
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "documents/3_c.pdf"))
		require.NoError(t, s.Delete(ctx, "documents/3_c.pdf"), "deleting a missing key should succeed")

		_, err = s.Download(ctx, "documents/3_c.pdf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// RunMetadataStoreTests exercises the MetadataStore contract.
func RunMetadataStoreTests(t *testing.T, newStore func(t *testing.T) storage.MetadataStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_brown_v_board.pdf")
		rec.Metadata[core.MetaCourt] = "scotus"
		require.NoError(t, s.Create(ctx, rec))
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.FilePath, got.FilePath)
		assert.Equal(t, core.StatusProcessing, got.Status)
		require.NotNil(t, got.ExtractedText)
		assert.Equal(t, *rec.ExtractedText, *got.ExtractedText)
		assert.Nil(t, got.Summary)
		assert.Equal(t, "scotus", got.Metadata[core.MetaCourt])

		byPath, err := s.GetByPath(ctx, rec.FilePath)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byPath.ID)
	})

	t.Run("empty extracted text is kept", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_scan.pdf")
		empty := ""
		rec.ExtractedText = &empty
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ExtractedText)
		assert.Equal(t, "", *got.ExtractedText)
	})

	t.Run("duplicate path rejected", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_a.pdf")
		require.NoError(t, s.Create(ctx, rec))

		dup := NewRecord("documents/1_a.pdf")
		err := s.Create(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, core.DocumentID("nope"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.GetByPath(ctx, "documents/nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.FindByNormalizedName(ctx, "nope.pdf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = s.UpdateStatus(ctx, core.DocumentID("nope"), core.StatusIndexed)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("find by normalized name", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_roe_v_wade.pdf")
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.FindByNormalizedName(ctx, core.NormalizeFileName("Roe v Wade.PDF"))
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})

	t.Run("status transitions", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_a.pdf")
		require.NoError(t, s.Create(ctx, rec))

		require.NoError(t, s.UpdateStatus(ctx, rec.ID, core.StatusIndexed))
		err := s.UpdateStatus(ctx, rec.ID, core.StatusFailed)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)

		other := NewRecord("documents/2_b.pdf")
		require.NoError(t, s.Create(ctx, other))
		require.NoError(t, s.UpdateStatus(ctx, other.ID, core.StatusFailed))
		require.NoError(t, s.UpdateStatus(ctx, other.ID, core.StatusProcessing), "failed records are retryable")

		got, err := s.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusProcessing, got.Status)
	})

	t.Run("update replaces fields", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("documents/1_a.pdf")
		require.NoError(t, s.Create(ctx, rec))

		summary := "summary text"
		rec.Summary = &summary
		rec.Status = core.StatusIndexed
		rec.Metadata[core.MetaOrphanFlaggedAt] = "2026-01-01T00:00:00Z"
		require.NoError(t, s.Update(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Summary)
		assert.Equal(t, summary, *got.Summary)
		assert.Equal(t, core.StatusIndexed, got.Status)
		assert.Equal(t, "2026-01-01T00:00:00Z", got.Metadata[core.MetaOrphanFlaggedAt])

		missing := NewRecord("documents/9_missing.pdf")
		assert.ErrorIs(t, s.Update(ctx, missing), storage.ErrNotFound)
	})

	t.Run("list and paths", func(t *testing.T) {
		s := newStore(t)
		base := time.Now().UTC().Add(-time.Hour)
		for i := range 5 {
			rec := NewRecord(fmt.Sprintf("documents/%d_doc%d.pdf", i, i))
			rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			rec.UpdatedAt = rec.CreatedAt
			if i%2 == 1 {
				rec.Status = core.StatusFailed
			}
			require.NoError(t, s.Create(ctx, rec))
		}

		page, err := s.List(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "documents/1_doc1.pdf", page[0].FilePath)
		assert.Equal(t, "documents/2_doc2.pdf", page[1].FilePath)

		tail, err := s.List(ctx, 4, 10)
		require.NoError(t, err)
		assert.Len(t, tail, 1)

		failed, err := s.ListByStatus(ctx, core.StatusFailed)
		require.NoError(t, err)
		assert.Len(t, failed, 2)

		paths, err := s.Paths(ctx)
		require.NoError(t, err)
		assert.Len(t, paths, 5)
		assert.Equal(t, core.DocumentID("documents/3_doc3.pdf"), paths["documents/3_doc3.pdf"])
	})
}
