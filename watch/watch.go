// Package watch ingests documents dropped into a directory.
//
// New files are debounced until their size stops changing for the settle
// delay, then ingested as manual uploads. Ingested files (and duplicates)
// move to done/, files that could not be stored move to failed/.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/ingestion"
)

const (
	// DefaultSettleDelay is how long a file must stay unchanged before ingestion.
	DefaultSettleDelay = 2 * time.Second

	DoneDir   = "done"
	FailedDir = "failed"
)

// Ingestor accepts manual uploads.
type Ingestor interface {
	IngestUpload(ctx context.Context, up ingestion.Upload) (*core.DocumentRecord, error)
}

// Watcher feeds a drop folder into an Ingestor.
type Watcher struct {
	dir      string
	ingestor Ingestor
	settle   time.Duration
	owner    string
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithSettleDelay sets how long a file must stay unchanged before ingestion.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) error {
		if d <= 0 {
			return fmt.Errorf("settle delay must be positive, got %s", d)
		}
		w.settle = d
		return nil
	}
}

// WithOwner records owner as the uploader of every ingested file.
func WithOwner(owner string) Option {
	return func(w *Watcher) error {
		w.owner = owner
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger != nil {
			w.logger = logger
		}
		return nil
	}
}

// New creates a watcher for dir.
func New(dir string, ingestor Ingestor, opts ...Option) (*Watcher, error) {
	if ingestor == nil {
		return nil, errors.New("ingestor required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	w := &Watcher{
		dir:      dir,
		ingestor: ingestor,
		settle:   DefaultSettleDelay,
		logger:   slog.Default().With("component", "watch"),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run watches the directory until ctx is canceled. Files already present
// when Run starts are ingested too.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{DoneDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return err
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching drop folder", "dir", w.dir, "settle", w.settle)

	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && eligible(e.Name()) {
			pending[e.Name()] = time.Now()
		}
	}

	ticker := time.NewTicker(max(w.settle/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
				continue
			}
			if name := filepath.Base(ev.Name); eligible(name) {
				pending[name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			var ready []string
			for name, seen := range pending {
				if now.Sub(seen) >= w.settle {
					ready = append(ready, name)
				}
			}
			slices.Sort(ready)
			for _, name := range ready {
				delete(pending, name)
				w.process(ctx, name)
			}
		}
	}
}

func (w *Watcher) process(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading dropped file", "file", name, "error", err)
		return
	}

	rec, err := w.ingestor.IngestUpload(ctx, ingestion.Upload{
		FileName: name,
		Data:     data,
		OwnerID:  w.owner,
	})
	dest := DoneDir
	switch {
	case err == nil:
		w.logger.Info("ingested dropped file", "file", name, "id", rec.ID, "status", rec.Status)
	case errors.Is(err, ingestion.ErrDuplicate):
		w.logger.Info("dropped file already ingested", "file", name)
	case ctx.Err() != nil:
		return
	default:
		w.logger.Error("ingesting dropped file failed", "file", name, "error", err)
		dest = FailedDir
	}
	if err := os.Rename(path, filepath.Join(w.dir, dest, name)); err != nil {
		w.logger.Warn("moving processed file", "file", name, "error", err)
	}
}

// eligible skips hidden files and the usual partial-download names.
func eligible(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".tmp", ".crdownload", ".swp":
		return false
	}
	return true
}
