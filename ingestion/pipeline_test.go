package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/ai/mock"
	"github.com/poiesic/lexsync/catalog"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/extract"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/storage/badger"
	"github.com/poiesic/lexsync/storage/memory"
)

const opinionText = "The court holds that the statute applies to interstate carriers. " +
	"Judgment for the appellant is affirmed and the matter remanded for further proceedings."

type fakeCatalog struct {
	items     []core.CatalogItem
	searchErr error

	mu         sync.Mutex
	downloads  map[string][]byte
	failures   map[string]error
	onDownload func()
}

func (c *fakeCatalog) Search(ctx context.Context, filters core.SearchFilters) ([]core.CatalogItem, error) {
	return c.items, c.searchErr
}

func (c *fakeCatalog) Download(ctx context.Context, item core.CatalogItem) ([]byte, error) {
	c.mu.Lock()
	hook := c.onDownload
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := c.failures[item.ID]; err != nil {
		return nil, err
	}
	if data, ok := c.downloads[item.ID]; ok {
		return data, nil
	}
	return []byte(opinionText + " Item " + item.ID + "."), nil
}

// fakeExtractor treats content as plain text unless overridden.
type fakeExtractor struct {
	textLayer func(src extract.Source) (string, error)
	ocr       func(src extract.Source) (string, error)

	mu       sync.Mutex
	ocrCalls int
}

func (e *fakeExtractor) TextLayer(ctx context.Context, src extract.Source) (string, error) {
	if e.textLayer != nil {
		return e.textLayer(src)
	}
	return string(src.Data), nil
}

func (e *fakeExtractor) OCR(ctx context.Context, src extract.Source) (string, error) {
	e.mu.Lock()
	e.ocrCalls++
	e.mu.Unlock()
	if e.ocr != nil {
		return e.ocr(src)
	}
	return "", extract.ErrUnsupported
}

type failingMetadata struct {
	storage.MetadataStore
	createErr error
}

func (m *failingMetadata) Create(ctx context.Context, rec *core.DocumentRecord) error {
	return m.createErr
}

// backfillingMetadata backfills the blob a Create is about to record, the
// way a reconciliation pass running next to an ingestion would.
type backfillingMetadata struct {
	storage.MetadataStore
	pipeline    *Pipeline
	armed       atomic.Bool
	backfillErr error
}

func (m *backfillingMetadata) Create(ctx context.Context, rec *core.DocumentRecord) error {
	if m.armed.CompareAndSwap(true, false) {
		_, m.backfillErr = m.pipeline.Backfill(ctx, rec.FilePath)
	}
	return m.MetadataStore.Create(ctx, rec)
}

type failingIndex struct {
	storage.SearchIndex
}

func (failingIndex) Upsert(ctx context.Context, doc core.IndexDocument) error {
	return errors.New("index unreachable")
}

type fixture struct {
	catalog    *fakeCatalog
	blobs      storage.BlobStore
	metadata   storage.MetadataStore
	index      storage.SearchIndex
	extractor  *fakeExtractor
	summarizer *mock.MockSummarizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx, err := badger.NewMemorySearchIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return &fixture{
		catalog:    &fakeCatalog{},
		blobs:      memory.NewBlobStore(),
		metadata:   memory.NewMetadataStore(),
		index:      idx,
		extractor:  &fakeExtractor{},
		summarizer: mock.NewMockSummarizer(),
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithBatchDelay(0)}, opts...)
	p, err := NewPipeline(f.catalog, f.blobs, f.metadata, f.index, f.extractor, f.summarizer, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func (f *fixture) records(t *testing.T) []*core.DocumentRecord {
	t.Helper()
	recs, err := f.metadata.List(context.Background(), 0, 1000)
	require.NoError(t, err)
	return recs
}

func catalogItem(id string) core.CatalogItem {
	return core.CatalogItem{
		ID:        id,
		CaseName:  "Case " + id,
		Court:     "scotus",
		DateFiled: time.Date(1954, 5, 17, 0, 0, 0, 0, time.UTC),
		Artifacts: []core.Artifact{{
			DownloadURL: "https://storage.example.com/opinions/" + id + ".txt",
			Checksum:    "sha-" + id,
			ContentType: "text/plain",
		}},
	}
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	f := newFixture(t)

	_, err := NewPipeline(nil, nil, f.metadata, f.index, f.extractor, f.summarizer)
	assert.ErrorIs(t, err, ErrBlobStoreRequired)
	_, err = NewPipeline(nil, f.blobs, nil, f.index, f.extractor, f.summarizer)
	assert.ErrorIs(t, err, ErrMetadataStoreRequired)
	_, err = NewPipeline(nil, f.blobs, f.metadata, nil, f.extractor, f.summarizer)
	assert.ErrorIs(t, err, ErrSearchIndexRequired)
	_, err = NewPipeline(nil, f.blobs, f.metadata, f.index, nil, f.summarizer)
	assert.ErrorIs(t, err, ErrExtractorRequired)
	_, err = NewPipeline(nil, f.blobs, f.metadata, f.index, f.extractor, nil)
	assert.ErrorIs(t, err, ErrSummarizerRequired)

	_, err = NewPipeline(nil, f.blobs, f.metadata, f.index, f.extractor, f.summarizer, WithBatchSize(0))
	assert.Error(t, err)
}

func TestRun_SkipsItemsWithoutUsableArtifact(t *testing.T) {
	f := newFixture(t)
	unusable := catalogItem("3")
	unusable.Artifacts[0].DownloadURL = "   "
	f.catalog.items = []core.CatalogItem{catalogItem("1"), catalogItem("2"), unusable}
	p := f.pipeline(t)

	stats, err := p.Run(context.Background(), core.SearchFilters{Query: "carrier"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Batches)

	recs := f.records(t)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, core.StatusIndexed, rec.Status)
		assert.Equal(t, core.PIIUnchecked, rec.PIIStatus)
		assert.Equal(t, core.SourceCatalog, rec.Metadata[core.MetaSource])
		assert.Equal(t, "1954-05-17", rec.Metadata[core.MetaDateFiled])
		assert.True(t, strings.HasPrefix(rec.FilePath, core.BlobKeyPrefix))

		_, err := f.blobs.Download(context.Background(), rec.FilePath)
		assert.NoError(t, err)
		doc, err := f.index.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "scotus", doc.Court)
	}
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t)

	p, err := NewPipeline(nil, f.blobs, f.metadata, f.index, f.extractor, f.summarizer)
	require.NoError(t, err)
	defer p.Release()
	_, err = p.Run(context.Background(), core.SearchFilters{})
	assert.ErrorIs(t, err, ErrCatalogRequired)

	f.catalog.searchErr = errors.New("boom")
	_, err = f.pipeline(t).Run(context.Background(), core.SearchFilters{})
	assert.ErrorIs(t, err, ErrCatalogSearch)
}

func TestRun_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.catalog.items = []core.CatalogItem{catalogItem("1"), catalogItem("2"), catalogItem("1")}
	p := f.pipeline(t, WithBatchSize(3))

	first, err := p.Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 1, first.SkippedDuplicate)

	second, err := p.Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.SkippedDuplicate)
	assert.Equal(t, 0, second.Downloaded)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.NotEqual(t, recs[0].NormalizedName, recs[1].NormalizedName)
}

func TestRun_UnavailableItemsAreSkipped(t *testing.T) {
	f := newFixture(t)
	f.catalog.items = []core.CatalogItem{catalogItem("1"), catalogItem("2")}
	f.catalog.failures = map[string]error{"2": fmt.Errorf("%w: 404", catalog.ErrUnavailable)}
	f.catalog.downloads = map[string][]byte{}
	p := f.pipeline(t)

	stats, err := p.Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.SkippedUnavailable)
	assert.Equal(t, 0, stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "fetching", stats.Failures[0].Stage)

	objs, err := f.blobs.List(context.Background(), core.BlobKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, objs, 1, "no placeholder is stored for an unavailable item")
}

func TestRun_BatchesAndCancellation(t *testing.T) {
	f := newFixture(t)
	for i := range 5 {
		f.catalog.items = append(f.catalog.items, catalogItem(fmt.Sprint(i)))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.catalog.onDownload = cancel
	p := f.pipeline(t, WithBatchSize(2))

	stats, err := p.Run(ctx, core.SearchFilters{})
	require.NoError(t, err)
	assert.True(t, stats.Canceled)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Processed, "the in-flight batch completes")
	assert.Len(t, f.records(t), 2)
}

func TestRun_BatchDelay(t *testing.T) {
	f := newFixture(t)
	f.catalog.items = []core.CatalogItem{catalogItem("1"), catalogItem("2"), catalogItem("3")}
	p := f.pipeline(t, WithBatchSize(1), WithBatchDelay(20*time.Millisecond))

	start := time.Now()
	stats, err := p.Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Batches)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestIngestUpload_OCRFallbackYieldsEmptyText(t *testing.T) {
	f := newFixture(t)
	f.extractor.textLayer = func(extract.Source) (string, error) {
		return strings.Repeat("ab", 20), nil
	}
	f.extractor.ocr = func(extract.Source) (string, error) { return "", nil }
	p := f.pipeline(t)

	rec, err := p.IngestUpload(context.Background(), Upload{
		FileName: "scanned brief.pdf",
		Data:     []byte("%PDF-1.4 scanned"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.extractor.ocrCalls)
	require.NotNil(t, rec.ExtractedText)
	assert.Equal(t, "", *rec.ExtractedText)
	assert.Equal(t, core.StatusIndexed, rec.Status)
	assert.Equal(t, core.SummaryUnavailable, *rec.Summary)
	assert.Equal(t, core.ExtractionNone, rec.Metadata[core.MetaExtractionMethod])
	assert.Equal(t, 0, f.summarizer.CallCount())

	stored, err := f.metadata.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.Equal(t, "scanned_brief.pdf", stored.NormalizedName)
}

func TestIngestUpload_OCRReplacesThinTextLayer(t *testing.T) {
	f := newFixture(t)
	f.extractor.textLayer = func(extract.Source) (string, error) { return "page 1", nil }
	f.extractor.ocr = func(extract.Source) (string, error) { return opinionText, nil }
	p := f.pipeline(t)

	rec, err := p.IngestUpload(context.Background(), Upload{FileName: "scan.png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)
	assert.Equal(t, opinionText, *rec.ExtractedText)
	assert.Equal(t, core.ExtractionOCR, rec.Metadata[core.MetaExtractionMethod])
	assert.Equal(t, 1, f.summarizer.CallCount())
}

func TestIngestUpload_SummaryFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	f.summarizer.WithSummarizeFunc(func(context.Context, ai.SummaryRequest) (*ai.Summary, error) {
		return nil, errors.New("model overloaded")
	})
	p := f.pipeline(t)

	rec, err := p.IngestUpload(context.Background(), Upload{FileName: "opinion.txt", Data: []byte(opinionText)})
	require.NoError(t, err)
	assert.Equal(t, core.SummaryUnavailable, *rec.Summary)
	assert.Equal(t, core.StatusIndexed, rec.Status)
	assert.Equal(t, opinionText, *rec.ExtractedText)

	doc, err := f.index.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.SummaryUnavailable, doc.Summary)
}

func TestIngestUpload_StoresAnnotations(t *testing.T) {
	f := newFixture(t)
	f.summarizer.WithSummarizeFunc(func(_ context.Context, req ai.SummaryRequest) (*ai.Summary, error) {
		return &ai.Summary{
			Text:      "Carrier loses.",
			Entities:  []core.Entity{{Name: "Supreme Court", Type: "court"}},
			Citations: []core.Citation{{Cite: "347 U.S. 483", Reporter: "U.S."}},
			Concepts:  []string{"interstate commerce"},
		}, nil
	})
	p := f.pipeline(t)

	rec, err := p.IngestUpload(context.Background(), Upload{
		FileName: "opinion.txt",
		Title:    "Carrier v. State",
		OwnerID:  "clerk-1",
		Data:     []byte(opinionText),
	})
	require.NoError(t, err)
	assert.Equal(t, "Carrier v. State", rec.Title)
	assert.Equal(t, "clerk-1", rec.OwnerID)

	doc, err := f.index.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carrier loses.", doc.Summary)
	assert.Equal(t, []string{"interstate commerce"}, doc.Concepts)
	require.Len(t, doc.Citations, 1)
	assert.Equal(t, "347 U.S. 483", doc.Citations[0].Cite)
}

func TestIngestUpload_Validation(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	_, err := p.IngestUpload(context.Background(), Upload{Data: []byte("x")})
	assert.ErrorIs(t, err, core.ErrEmptyFileName)
	_, err = p.IngestUpload(context.Background(), Upload{FileName: "a.txt"})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = p.IngestUpload(context.Background(), Upload{FileName: "Brief One.txt", Data: []byte(opinionText)})
	require.NoError(t, err)
	_, err = p.IngestUpload(context.Background(), Upload{FileName: "brief-one.TXT", Data: []byte(opinionText)})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, f.records(t), 1)
}

func TestIngestUpload_IndexFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.index = failingIndex{SearchIndex: f.index}
	p := f.pipeline(t)

	rec, err := p.IngestUpload(context.Background(), Upload{FileName: "opinion.txt", Data: []byte(opinionText)})
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, rec.Status)

	stored, err := f.metadata.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, stored.Status)
}

func TestRun_IndexFailureCounted(t *testing.T) {
	f := newFixture(t)
	f.index = failingIndex{SearchIndex: f.index}
	f.catalog.items = []core.CatalogItem{catalogItem("1")}

	stats, err := f.pipeline(t).Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.IndexFailures)
	assert.Equal(t, 0, stats.Failed)
}

func TestRun_PersistFailureRemovesFreshBlob(t *testing.T) {
	f := newFixture(t)
	f.metadata = &failingMetadata{MetadataStore: f.metadata, createErr: storage.ErrUnavailable}
	f.catalog.items = []core.CatalogItem{catalogItem("1")}

	stats, err := f.pipeline(t).Run(context.Background(), core.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Processed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "persisting", stats.Failures[0].Stage)

	objs, err := f.blobs.List(context.Background(), core.BlobKeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestIngestUpload_PersistFailure(t *testing.T) {
	f := newFixture(t)
	f.metadata = &failingMetadata{MetadataStore: f.metadata, createErr: storage.ErrUnavailable}

	_, err := f.pipeline(t).IngestUpload(context.Background(), Upload{FileName: "a.txt", Data: []byte(opinionText)})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestIngestUpload_ConcurrentBackfillKeepsBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	racing := &backfillingMetadata{MetadataStore: f.metadata}
	racing.armed.Store(true)
	f.metadata = racing
	p := f.pipeline(t)
	racing.pipeline = p

	rec, err := p.IngestUpload(ctx, Upload{FileName: "roe.txt", Data: []byte(opinionText)})
	require.NoError(t, err)
	require.NoError(t, racing.backfillErr)
	assert.Equal(t, core.DocumentID(rec.FilePath), rec.ID)
	assert.Equal(t, core.StatusIndexed, rec.Status)

	data, err := f.blobs.Download(ctx, rec.FilePath)
	require.NoError(t, err)
	assert.Equal(t, opinionText, string(data))
	assert.Len(t, f.records(t), 1)

	_, err = f.index.Get(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestRun_ConcurrentBackfillKeepsBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.catalog.items = []core.CatalogItem{catalogItem("1")}
	racing := &backfillingMetadata{MetadataStore: f.metadata}
	racing.armed.Store(true)
	f.metadata = racing
	p := f.pipeline(t)
	racing.pipeline = p

	stats, err := p.Run(ctx, core.SearchFilters{Query: "carriers"})
	require.NoError(t, err)
	require.NoError(t, racing.backfillErr)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.SkippedDuplicate)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, core.StatusIndexed, recs[0].Status)
	_, err = f.blobs.Download(ctx, recs[0].FilePath)
	assert.NoError(t, err)
}

func TestBackfill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "documents/1700000000000_brown_v_board.txt"
	_, err := f.blobs.Upload(ctx, key, []byte(opinionText), "text/plain")
	require.NoError(t, err)
	p := f.pipeline(t)

	rec, err := p.Backfill(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentID(key), rec.ID)
	assert.Equal(t, key, rec.FilePath)
	assert.Equal(t, "brown_v_board.txt", rec.FileName)
	assert.Equal(t, "Brown V Board", rec.Title)
	assert.Equal(t, core.SourceBackfill, rec.Metadata[core.MetaSource])
	assert.Equal(t, core.StatusIndexed, rec.Status)

	_, err = p.Backfill(ctx, key)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = p.Backfill(ctx, "documents/missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRetryFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "documents/1700000000000_retry_me.txt"
	_, err := f.blobs.Upload(ctx, key, []byte(opinionText), "text/plain")
	require.NoError(t, err)
	require.NoError(t, f.metadata.Create(ctx, &core.DocumentRecord{
		ID:        core.DocumentID(key),
		FileName:  "retry_me.txt",
		FilePath:  key,
		FileType:  "txt",
		Status:    core.StatusFailed,
		PIIStatus: core.PIIClean,
		Metadata: map[string]any{
			core.MetaSource:        core.SourceUpload,
			core.MetaFailureReason: "database unreachable",
		},
	}))
	orphanKey := "documents/1700000000001_gone.txt"
	require.NoError(t, f.metadata.Create(ctx, &core.DocumentRecord{
		ID:        core.DocumentID(orphanKey),
		FileName:  "gone.txt",
		FilePath:  orphanKey,
		FileType:  "txt",
		Status:    core.StatusFailed,
		PIIStatus: core.PIIUnchecked,
	}))
	p := f.pipeline(t)

	stats, err := p.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)

	rec, err := f.metadata.Get(ctx, core.DocumentID(key))
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, rec.Status)
	assert.Equal(t, core.PIIClean, rec.PIIStatus)
	assert.Equal(t, opinionText, *rec.ExtractedText)
	assert.NotContains(t, rec.Metadata, core.MetaFailureReason)

	gone, err := f.metadata.Get(ctx, core.DocumentID(orphanKey))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, gone.Status)
}

func TestReproject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := opinionText
	rec := &core.DocumentRecord{
		ID:            core.DocumentID("documents/1_x.txt"),
		FileName:      "x.txt",
		FilePath:      "documents/1_x.txt",
		FileType:      "txt",
		Status:        core.StatusProcessing,
		PIIStatus:     core.PIIUnchecked,
		ExtractedText: &text,
	}
	require.NoError(t, f.metadata.Create(ctx, rec))
	p := f.pipeline(t)

	require.NoError(t, p.Reproject(ctx, rec))
	stored, err := f.metadata.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	doc, err := f.index.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, opinionText, doc.Content)

	// Indexed records are re-projected without a status change.
	require.NoError(t, p.Reproject(ctx, stored))
}
