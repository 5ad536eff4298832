package reindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/storage/badger"
	"github.com/poiesic/lexsync/storage/memory"
)

func setupStores(t *testing.T, n int) (storage.MetadataStore, storage.SearchIndex) {
	t.Helper()
	idx, err := badger.NewMemorySearchIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	md := memory.NewMetadataStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		key := fmt.Sprintf("documents/%d_doc_%d.txt", 1700000000000+i, i)
		text := fmt.Sprintf("Opinion %d concerning contract damages.", i)
		status := core.StatusIndexed
		if i%2 == 0 {
			status = core.StatusProcessing
		}
		require.NoError(t, md.Create(context.Background(), &core.DocumentRecord{
			ID:            core.DocumentID(key),
			FileName:      fmt.Sprintf("doc_%d.txt", i),
			FilePath:      key,
			FileType:      "txt",
			Status:        status,
			ExtractedText: &text,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return md, idx
}

type flakyIndex struct {
	storage.SearchIndex
	calls    atomic.Int32
	failFor  string
	failures int32
}

func (f *flakyIndex) Upsert(ctx context.Context, doc core.IndexDocument) error {
	n := f.calls.Add(1)
	if doc.ID == f.failFor {
		return errors.New("index rejected document")
	}
	if n <= f.failures {
		return errors.New("index busy")
	}
	return f.SearchIndex.Upsert(ctx, doc)
}

func TestRecordIterator_Pages(t *testing.T) {
	md, _ := setupStores(t, 7)
	it := NewRecordIterator(md, 3)

	var sizes []int
	seen := map[string]bool{}
	err := it.ForEach(context.Background(), func(recs []*core.DocumentRecord) error {
		sizes = append(sizes, len(recs))
		for _, r := range recs {
			seen[r.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	md, _ := setupStores(t, 5)
	boom := errors.New("stop")
	calls := 0
	err := NewRecordIterator(md, 2).ForEach(context.Background(), func([]*core.DocumentRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIterator_Canceled(t *testing.T) {
	md, _ := setupStores(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRecordIterator(md, 0).ForEach(ctx, func([]*core.DocumentRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestReindexer_Run(t *testing.T) {
	md, idx := setupStores(t, 10)
	var buf bytes.Buffer
	r := NewReindexer(md, idx, &Config{BatchSize: 3, ReportInterval: 3, MaxRetries: 2, RetryDelay: time.Millisecond}, bufferLogger(&buf))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 10, res.Indexed)
	assert.Equal(t, 0, res.Failed)

	ids, err := idx.IDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 10)

	processing, err := md.ListByStatus(context.Background(), core.StatusProcessing)
	require.NoError(t, err)
	assert.Empty(t, processing)
	assert.Contains(t, buf.String(), "msg=\"reindex progress\"")
	assert.Contains(t, buf.String(), "msg=\"reindex finished\" done=10 total=10")
	assert.Contains(t, buf.String(), "msg=\"reindex complete\" indexed=10 failed=0")
}

func TestReindexer_EmptyStore(t *testing.T) {
	md, idx := setupStores(t, 0)
	var buf bytes.Buffer
	res, err := NewReindexer(md, idx, nil, bufferLogger(&buf)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Contains(t, buf.String(), "records=0")
	assert.NotContains(t, buf.String(), "reindex progress")
}

func TestReindexer_RetriesAndReportsFailures(t *testing.T) {
	md, idx := setupStores(t, 4)
	recs, err := md.List(context.Background(), 0, 10)
	require.NoError(t, err)
	flaky := &flakyIndex{SearchIndex: idx, failFor: recs[2].ID, failures: 1}

	r := NewReindexer(md, flaky, &Config{BatchSize: 2, ReportInterval: 10, MaxRetries: 3, RetryDelay: time.Millisecond}, nil)
	res, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 1, res.Failed)

	_, err = idx.Get(context.Background(), recs[0].ID)
	assert.NoError(t, err, "transient failure was retried")
}

func TestReindexer_Prune(t *testing.T) {
	md, idx := setupStores(t, 2)
	require.NoError(t, idx.Upsert(context.Background(), core.IndexDocument{ID: "stale", Title: "Stale"}))

	cfg := DefaultConfig()
	cfg.Prune = true
	res, err := NewReindexer(md, idx, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	_, err = idx.Get(context.Background(), "stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(bufferLogger(&buf), 100, 10)
	tracker.Increment(10)
	assert.Empty(t, buf.String(), "nothing reported before Start")
	assert.Zero(t, tracker.Elapsed())

	tracker.Start()
	tracker.Increment(5)
	assert.Empty(t, buf.String(), "below the report interval")
	tracker.Increment(20)
	tracker.Increment(80)
	tracker.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "done=25 total=100")
	assert.Contains(t, lines[0], "percent=25")
	assert.Contains(t, lines[1], "done=100 total=100")
	assert.Contains(t, lines[2], "msg=\"reindex finished\"")
	assert.Contains(t, lines[2], "percent=100")
	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
}
