package badger

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

func newTestIndex(t *testing.T) storage.SearchIndex {
	t.Helper()
	idx, err := NewMemorySearchIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func sampleDocs() []core.IndexDocument {
	return []core.IndexDocument{
		{
			ID:        "brown",
			Title:     "Brown v. Board of Education",
			FileName:  "brown.pdf",
			FileType:  "pdf",
			Court:     "scotus",
			DateFiled: time.Date(1954, 5, 17, 0, 0, 0, 0, time.UTC),
			Content:   "Separate educational facilities are inherently unequal. The plaintiffs were denied equal protection.",
			Chunks:    core.ChunkText("Separate educational facilities are inherently unequal. The plaintiffs were denied equal protection.", 1000),
			Summary:   "Segregation in public schools violates equal protection.",
			Citations: []core.Citation{{Cite: "347 U.S. 483", Reporter: "U.S."}},
			Entities:  []core.Entity{{Name: "Earl Warren", Type: "judge"}},
			Concepts:  []string{"equal protection"},
		},
		{
			ID:        "roe",
			Title:     "Roe v. Wade",
			FileName:  "roe.pdf",
			FileType:  "pdf",
			Court:     "scotus",
			DateFiled: time.Date(1973, 1, 22, 0, 0, 0, 0, time.UTC),
			Content:   "The right of privacy is broad enough to encompass a decision.",
			Summary:   "Privacy ruling.",
		},
		{
			ID:        "smith",
			Title:     "Smith Negligence Brief",
			FileName:  "smith.docx",
			FileType:  "docx",
			Court:     "ca9",
			DateFiled: time.Date(2001, 3, 2, 0, 0, 0, 0, time.UTC),
			Content:   "The defendant acted with negligence when the petitioner was injured.",
		},
	}
}

func seed(t *testing.T, idx storage.SearchIndex) {
	t.Helper()
	for _, doc := range sampleDocs() {
		require.NoError(t, idx.Upsert(context.Background(), doc))
	}
}

func TestSearchIndex_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	doc := sampleDocs()[0]

	require.NoError(t, idx.Upsert(ctx, doc))
	got, err := idx.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Citations, got.Citations)

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"brown"}, ids)

	require.NoError(t, idx.Delete(ctx, doc.ID))
	require.NoError(t, idx.Delete(ctx, doc.ID), "deleting twice should succeed")
	_, err = idx.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	res, err := idx.Search(ctx, storage.Query{Text: "segregation"})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "deleted document should leave no postings")
}

func TestSearchIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	doc := sampleDocs()[1]
	require.NoError(t, idx.Upsert(ctx, doc))

	doc.Content = "Completely different text about maritime salvage."
	doc.Summary = ""
	require.NoError(t, idx.Upsert(ctx, doc))

	res, err := idx.Search(ctx, storage.Query{Text: "privacy"})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "stale postings should be removed")

	res, err = idx.Search(ctx, storage.Query{Text: "salvage"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSearchIndex_EmptyIDRejected(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Upsert(context.Background(), core.IndexDocument{Title: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestSearchIndex_Ranking(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	res, err := idx.Search(ctx, storage.Query{Text: "equal protection"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "brown", res.Hits[0].ID)
	require.NotEmpty(t, res.Hits[0].Highlights)
	assert.Contains(t, res.Hits[0].Highlights[0], "<em>equal</em>")
}

func TestSearchIndex_TitleBoost(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	res, err := idx.Search(ctx, storage.Query{Text: "negligence"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "smith", res.Hits[0].ID)
}

func TestSearchIndex_Synonyms(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	// "petitioner" in the smith brief folds onto "appellant".
	res, err := idx.Search(ctx, storage.Query{Text: "appellant"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "smith", res.Hits[0].ID)

	res, err = idx.Search(ctx, storage.Query{Text: "roe versus wade"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "roe", res.Hits[0].ID)
}

func TestSearchIndex_Fuzzy(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	res, err := idx.Search(ctx, storage.Query{Text: "negligense"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "smith", res.Hits[0].ID)

	res, err = idx.Search(ctx, storage.Query{Text: "privasy"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "roe", res.Hits[0].ID)

	res, err = idx.Search(ctx, storage.Query{Text: "wadd"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total, "four letter terms allow one edit")

	res, err = idx.Search(ctx, storage.Query{Text: "roa"})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "short terms must match exactly")
}

func TestSearchIndex_FiltersAndFacets(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)

	res, err := idx.Search(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total, "empty query matches everything")
	assert.Equal(t, []storage.FacetCount{{Value: "pdf", Count: 2}, {Value: "docx", Count: 1}}, res.Facets.FileType)
	assert.Equal(t, []storage.FacetCount{{Value: "scotus", Count: 2}, {Value: "ca9", Count: 1}}, res.Facets.Court)
	assert.Len(t, res.Facets.Year, 3)
	assert.Equal(t, "smith", res.Hits[0].ID, "unscored results are newest first")

	res, err = idx.Search(ctx, storage.Query{FileTypes: []string{"pdf"}, Court: "SCOTUS"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = idx.Search(ctx, storage.Query{
		FiledAfter:  time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
		FiledBefore: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "roe", res.Hits[0].ID)

	res, err = idx.Search(ctx, storage.Query{Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Hits, 1)

	_, err = idx.Search(ctx, storage.Query{Size: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestSearchIndex_Suggest(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	seed(t, idx)
	for i := range 8 {
		require.NoError(t, idx.Upsert(ctx, core.IndexDocument{
			ID:    fmt.Sprintf("brief-%d", i),
			Title: fmt.Sprintf("Brief %d", i),
		}))
	}

	titles, err := idx.Suggest(ctx, "Bro", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brown v. Board of Education"}, titles)

	titles, err = idx.Suggest(ctx, "board", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Brown v. Board of Education"}, titles, "completions match inner words")

	titles, err = idx.Suggest(ctx, "brief", 10)
	require.NoError(t, err)
	assert.Len(t, titles, MaxSuggestions)

	titles, err = idx.Suggest(ctx, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, titles)
}

func TestSearchIndex_SchemaPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenSearchIndex(dir, WithAnalyzer(DefaultStopwords, nil))
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, sampleDocs()[2]))
	require.NoError(t, idx.Close())

	// A reopened index keeps the stored analyzer even if the options differ.
	idx, err = OpenSearchIndex(dir)
	require.NoError(t, err)
	defer idx.Close()

	res, err := idx.Search(ctx, storage.Query{Text: "appellant"})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "the stored schema has no synonym groups")

	res, err = idx.Search(ctx, storage.Query{Text: "petitioner"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestSearchIndex_Closed(t *testing.T) {
	idx, err := NewMemorySearchIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.IDs(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
