package postgres

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteStore backs the store with a file database; ":memory:" would give
// every pooled connection its own empty database.
func newSQLiteStore(t *testing.T) storage.MetadataStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexsync.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := New(db, WithAutoMigrate(true))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMetadataStore(t *testing.T) {
	storagetest.RunMetadataStoreTests(t, newSQLiteStore)
}

func TestMetadataStore_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	rec := storagetest.NewRecord("documents/1_brown.pdf")
	rec.Metadata[core.MetaCitations] = []core.Citation{{Cite: "347 U.S. 483"}}
	rec.Metadata[core.MetaPageCount] = 14
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	var citations []core.Citation
	require.True(t, core.DecodeMetadata(got.Metadata, core.MetaCitations, &citations))
	assert.Equal(t, "347 U.S. 483", citations[0].Cite)
	assert.EqualValues(t, 14, got.Metadata[core.MetaPageCount])
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t, []string{"processing", "indexed"}, sourcesOf(core.StatusIndexed))
	assert.ElementsMatch(t, []string{"processing", "failed"}, sourcesOf(core.StatusFailed))
	assert.ElementsMatch(t, []string{"processing", "failed"}, sourcesOf(core.StatusProcessing))
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
