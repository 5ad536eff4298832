package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

const defaultConcurrency = 8

// Repairer rebuilds records and index entries. The ingestion pipeline
// implements it.
type Repairer interface {
	// Backfill creates the record of a blob that has none.
	Backfill(ctx context.Context, key string) (*core.DocumentRecord, error)
	// Reproject upserts the record into the index, flipping processing to indexed.
	Reproject(ctx context.Context, rec *core.DocumentRecord) error
}

// Engine runs reconciliation passes.
type Engine struct {
	blobs       storage.BlobStore
	metadata    storage.MetadataStore
	index       storage.SearchIndex
	repairer    Repairer
	classifier  ContentClassifier
	prefix      string
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithClassifier replaces the default marker classifier.
func WithClassifier(c ContentClassifier) Option {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("classifier cannot be nil")
		}
		e.classifier = c
		return nil
	}
}

// WithPrefix limits the blob inventory to keys under prefix.
// Default is core.BlobKeyPrefix.
func WithPrefix(prefix string) Option {
	return func(e *Engine) error {
		e.prefix = prefix
		return nil
	}
}

// WithConcurrency bounds how many blobs are sniffed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		e.concurrency = n
		return nil
	}
}

// WithClock replaces time.Now, which stamps orphan flags and reports.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// NewEngine creates a reconciliation engine.
func NewEngine(blobs storage.BlobStore, metadata storage.MetadataStore, index storage.SearchIndex, repairer Repairer, opts ...Option) (*Engine, error) {
	if blobs == nil || metadata == nil || index == nil {
		return nil, ErrStoreRequired
	}
	if repairer == nil {
		return nil, ErrRepairerRequired
	}
	e := &Engine{
		blobs:       blobs,
		metadata:    metadata,
		index:       index,
		repairer:    repairer,
		classifier:  NewMarkerClassifier(),
		prefix:      core.BlobKeyPrefix,
		concurrency: defaultConcurrency,
		now:         time.Now,
		logger:      slog.Default().With("component", "reconcile"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// inventory is a snapshot of the three stores.
type inventory struct {
	blobs        []core.BlobObject
	canonical    map[string]struct{}
	placeholders []string
	unreadable   map[string]struct{}
	paths        map[string]string // file_path -> id
	indexed      map[string]struct{}
	failures     []core.ItemFailure
}

func (e *Engine) inventory(ctx context.Context) (*inventory, error) {
	inv := &inventory{
		canonical:  make(map[string]struct{}),
		unreadable: make(map[string]struct{}),
		indexed:    make(map[string]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		objs, err := e.blobs.List(gctx, e.prefix)
		if err != nil {
			return fmt.Errorf("%w: blob store: %w", ErrInventory, err)
		}
		inv.blobs = objs
		return e.classify(gctx, inv)
	})
	g.Go(func() error {
		paths, err := e.metadata.Paths(gctx)
		if err != nil {
			return fmt.Errorf("%w: metadata store: %w", ErrInventory, err)
		}
		inv.paths = paths
		return nil
	})
	g.Go(func() error {
		ids, err := e.index.IDs(gctx)
		if err != nil {
			return fmt.Errorf("%w: search index: %w", ErrInventory, err)
		}
		for _, id := range ids {
			inv.indexed[id] = struct{}{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inv, nil
}

// classify sniffs every listed blob. Blobs that cannot be read are kept out
// of both the canonical and the placeholder set.
func (e *Engine) classify(ctx context.Context, inv *inventory) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, obj := range inv.blobs {
		g.Go(func() error {
			placeholder, err := e.sniff(gctx, obj.Key)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				inv.unreadable[obj.Key] = struct{}{}
				inv.failures = append(inv.failures, core.ItemFailure{Ref: obj.Key, Stage: "classify", Err: err.Error()})
			case placeholder:
				inv.placeholders = append(inv.placeholders, obj.Key)
			default:
				inv.canonical[obj.Key] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slices.Sort(inv.placeholders)
	return nil
}

func (e *Engine) sniff(ctx context.Context, key string) (bool, error) {
	prefix, err := e.blobs.ReadPrefix(ctx, key, e.classifier.PrefixLen())
	if err != nil {
		return false, err
	}
	return e.classifier.IsPlaceholder(prefix), nil
}

// Run performs one reconciliation pass and applies every repair.
func (e *Engine) Run(ctx context.Context) (*core.SyncReport, error) {
	return e.pass(ctx, false)
}

// DryRun computes the report of a pass without writing to any store.
func (e *Engine) DryRun(ctx context.Context) (*core.SyncReport, error) {
	return e.pass(ctx, true)
}

func (e *Engine) pass(ctx context.Context, dry bool) (*core.SyncReport, error) {
	report := &core.SyncReport{DryRun: dry, StartedAt: e.now().UTC()}
	inv, err := e.inventory(ctx)
	if err != nil {
		return nil, err
	}
	report.Failures = append(report.Failures, inv.failures...)
	fail := func(ref, stage string, err error) {
		e.logger.Warn("repair failed", "ref", ref, "stage", stage, "error", err)
		report.Failures = append(report.Failures, core.ItemFailure{Ref: ref, Stage: stage, Err: err.Error()})
	}

	// Blobs without a record.
	var missing []string
	for key := range inv.canonical {
		if _, ok := inv.paths[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	report.MissingMetadata = len(missing)
	for _, key := range missing {
		if dry {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := e.repairer.Backfill(ctx, key)
		if err != nil {
			fail(key, "backfill", err)
			continue
		}
		inv.paths[rec.FilePath] = rec.ID
		if rec.Status == core.StatusIndexed {
			inv.indexed[rec.ID] = struct{}{}
		}
	}

	// Records without a canonical blob.
	orphans := make(map[string]struct{})
	for path, id := range inv.paths {
		if _, ok := inv.canonical[path]; ok {
			continue
		}
		if _, ok := inv.unreadable[path]; ok {
			continue
		}
		orphans[id] = struct{}{}
	}
	report.OrphansPendingReview = len(orphans)
	for _, id := range slices.Sorted(maps.Keys(orphans)) {
		flagged, err := e.flagOrphan(ctx, id, dry)
		if err != nil {
			fail(id, "flag_orphan", err)
			continue
		}
		if flagged {
			report.OrphanMetadata++
		}
	}

	// Records missing from the index.
	var unindexed []string
	for _, id := range inv.paths {
		if _, ok := inv.indexed[id]; !ok {
			unindexed = append(unindexed, id)
		}
	}
	slices.Sort(unindexed)
	report.MissingIndex = len(unindexed)
	for _, id := range unindexed {
		if dry {
			continue
		}
		if err := e.reproject(ctx, id, orphans); err != nil {
			fail(id, "reproject", err)
			continue
		}
		inv.indexed[id] = struct{}{}
	}

	// Records already in the index but still marked processing.
	processing, err := e.metadata.ListByStatus(ctx, core.StatusProcessing)
	if err != nil {
		fail("", "status_repair", err)
	}
	for _, rec := range processing {
		if _, ok := inv.indexed[rec.ID]; !ok {
			continue
		}
		if _, orphan := orphans[rec.ID]; orphan {
			continue
		}
		if _, ok := inv.paths[rec.FilePath]; !ok {
			continue
		}
		report.StatusRepaired++
		if dry {
			continue
		}
		if err := e.metadata.UpdateStatus(ctx, rec.ID, core.StatusIndexed); err != nil {
			fail(rec.ID, "status_repair", err)
		}
	}

	// Placeholder blobs go last so nothing above can depend on them.
	for _, key := range inv.placeholders {
		if dry {
			report.PlaceholderArtifactsRemoved++
			continue
		}
		removed, err := e.removePlaceholder(ctx, key)
		if err != nil {
			fail(key, "delete_placeholder", err)
			continue
		}
		if removed {
			report.PlaceholderArtifactsRemoved++
		}
	}

	report.FinishedAt = e.now().UTC()
	e.logger.Info("reconciliation pass finished",
		"dry_run", dry,
		"missing_metadata", report.MissingMetadata,
		"missing_index", report.MissingIndex,
		"orphan_metadata", report.OrphanMetadata,
		"orphans_pending_review", report.OrphansPendingReview,
		"placeholders_removed", report.PlaceholderArtifactsRemoved,
		"status_repaired", report.StatusRepaired,
		"failures", len(report.Failures))
	return report, nil
}

// flagOrphan marks a record whose blob is missing for manual review. It
// reports whether the record was newly flagged.
func (e *Engine) flagOrphan(ctx context.Context, id string, dry bool) (bool, error) {
	rec, err := e.metadata.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if _, ok := rec.Metadata[core.MetaOrphanFlaggedAt]; ok {
		return false, nil
	}
	if dry {
		return true, nil
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	rec.Metadata[core.MetaOrphanFlaggedAt] = e.now().UTC().Format(time.RFC3339)
	if err := e.metadata.Update(ctx, rec); err != nil {
		return false, err
	}
	e.logger.Warn("record has no blob, flagged for review", "id", id, "file_path", rec.FilePath)
	return true, nil
}

// reproject rebuilds an index entry. Orphan records are indexed without a
// status change so that an indexed record always has its blob.
func (e *Engine) reproject(ctx context.Context, id string, orphans map[string]struct{}) error {
	rec, err := e.metadata.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, orphan := orphans[id]; orphan {
		return e.index.Upsert(ctx, core.Project(rec))
	}
	return e.repairer.Reproject(ctx, rec)
}

// removePlaceholder deletes a blob after confirming the marker once more.
func (e *Engine) removePlaceholder(ctx context.Context, key string) (bool, error) {
	placeholder, err := e.sniff(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !placeholder {
		e.logger.Info("blob no longer carries the marker, keeping it", "key", key)
		return false, nil
	}
	if err := e.blobs.Delete(ctx, key); err != nil {
		return false, err
	}
	e.logger.Info("removed placeholder blob", "key", key)
	return true, nil
}

// Analyze inventories the blob store without changing anything.
func (e *Engine) Analyze(ctx context.Context) (*core.CleanupAnalysis, error) {
	objs, err := e.blobs.List(ctx, e.prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: blob store: %w", ErrInventory, err)
	}
	inv := &inventory{
		blobs:      objs,
		canonical:  make(map[string]struct{}),
		unreadable: make(map[string]struct{}),
	}
	if err := e.classify(ctx, inv); err != nil {
		return nil, err
	}

	a := &core.CleanupAnalysis{
		TotalFiles:       len(objs),
		CanonicalFiles:   len(inv.canonical),
		PlaceholderFiles: len(inv.placeholders),
	}
	for _, obj := range objs {
		if !isText(obj) {
			continue
		}
		a.LegacyTextFiles++
		if _, ok := inv.canonical[obj.Key]; ok {
			a.RealTextFiles++
		}
	}
	return a, nil
}

func isText(obj core.BlobObject) bool {
	if strings.HasPrefix(obj.ContentType, "text/plain") {
		return true
	}
	return core.FileTypeOf(obj.Key, "") == "txt"
}
