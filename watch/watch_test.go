package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/ingestion"
)

type recordingIngestor struct {
	mu      sync.Mutex
	uploads []ingestion.Upload
	errs    map[string]error
}

func (r *recordingIngestor) IngestUpload(ctx context.Context, up ingestion.Upload) (*core.DocumentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, up)
	if err := r.errs[up.FileName]; err != nil {
		return nil, err
	}
	return &core.DocumentRecord{ID: "id-" + up.FileName, Status: core.StatusIndexed}, nil
}

func (r *recordingIngestor) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.uploads {
		out = append(out, u.FileName)
	}
	return out
}

func TestEligible(t *testing.T) {
	assert.True(t, eligible("brief.pdf"))
	assert.True(t, eligible("notes"))
	assert.False(t, eligible(".DS_Store"))
	assert.False(t, eligible("brief.pdf.part"))
	assert.False(t, eligible("draft.docx~"))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(t.TempDir(), nil)
	assert.Error(t, err)
	_, err = New(filepath.Join(t.TempDir(), "missing"), &recordingIngestor{})
	assert.Error(t, err)
	_, err = New(t.TempDir(), &recordingIngestor{}, WithSettleDelay(0))
	assert.Error(t, err)
}

func TestRun_IngestsAndMovesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("already here"), 0o644))

	ing := &recordingIngestor{errs: map[string]error{
		"dup.txt":    fmt.Errorf("%w: dup.txt", ingestion.ErrDuplicate),
		"broken.txt": fmt.Errorf("%w: database down", ingestion.ErrPersistence),
	}}
	w, err := New(dir, ing, WithSettleDelay(50*time.Millisecond), WithOwner("scanner"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before dropping files.
	time.Sleep(100 * time.Millisecond)
	for _, name := range []string{"new.txt", "dup.txt", "broken.txt", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0o644))
	}

	moved := func() bool {
		for _, p := range []string{
			filepath.Join(dir, DoneDir, "existing.txt"),
			filepath.Join(dir, DoneDir, "new.txt"),
			filepath.Join(dir, DoneDir, "dup.txt"),
			filepath.Join(dir, FailedDir, "broken.txt"),
		} {
			if _, err := os.Stat(p); err != nil {
				return false
			}
		}
		return true
	}
	require.Eventually(t, moved, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []string{"existing.txt", "new.txt", "dup.txt", "broken.txt"}, ing.names())
	for _, name := range []string{"existing.txt", "new.txt", "dup.txt"} {
		assert.FileExists(t, filepath.Join(dir, DoneDir, name))
	}
	assert.FileExists(t, filepath.Join(dir, FailedDir, "broken.txt"))
	assert.FileExists(t, filepath.Join(dir, ".hidden"))
	assert.Equal(t, "scanner", ing.uploads[0].OwnerID)
}
