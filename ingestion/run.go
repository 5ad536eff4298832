package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/poiesic/lexsync/catalog"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

// tally aggregates item results from concurrent workers.
type tally struct {
	mu    sync.Mutex
	stats *core.IngestionStats
}

func (t *tally) add(res *result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if res.downloaded {
		s.Downloaded++
	}
	if res.ocr {
		s.OCRFallbacks++
	}
	if res.summaryUnavailable {
		s.SummaryUnavailable++
	}
	if res.indexFailed {
		s.IndexFailures++
	}
	switch {
	case res.failed:
		s.Failed++
	case res.skippedUnavailable:
		s.SkippedUnavailable++
	case res.skippedDuplicate:
		s.SkippedDuplicate++
	default:
		s.Processed++
	}
	s.Failures = append(s.Failures, res.failures...)
}

// Run queries the catalog and ingests every item with a usable artifact.
//
// Items are processed in batches of the configured size, one batch at a
// time, with the configured delay between batches. Cancelling ctx stops the
// run at the next batch boundary; the batch in flight always completes.
// Per-item problems are reported in the returned stats. An error is returned
// only when the run cannot start.
func (p *Pipeline) Run(ctx context.Context, filters core.SearchFilters) (*core.IngestionStats, error) {
	start := time.Now()
	stats := &core.IngestionStats{}
	if p.catalog == nil {
		return stats, ErrCatalogRequired
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	found, err := p.catalog.Search(ctx, filters)
	if err != nil {
		return stats, fmt.Errorf("%w: %w", ErrCatalogSearch, err)
	}
	items := make([]core.CatalogItem, 0, len(found))
	for _, item := range found {
		if catalog.HasUsableArtifact(item) {
			items = append(items, item)
		}
	}
	stats.Total = len(items)
	p.logger.Info("starting ingestion run",
		"found", len(found), "usable", len(items), "batch_size", p.batchSize)

	t := &tally{stats: stats}
	jobs := make([]func(context.Context) *result, len(items))
	for i, item := range items {
		jobs[i] = func(ctx context.Context) *result { return p.fetchAndIngest(ctx, item) }
	}
	stats.Canceled = p.runBatches(ctx, jobs, t)
	stats.Elapsed = time.Since(start)

	p.logger.Info("ingestion run finished",
		"total", stats.Total,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"skipped_unavailable", stats.SkippedUnavailable,
		"skipped_duplicate", stats.SkippedDuplicate,
		"canceled", stats.Canceled,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// runBatches executes jobs in sequential batches on the worker pool and
// reports whether cancellation stopped it early.
func (p *Pipeline) runBatches(ctx context.Context, jobs []func(context.Context) *result, t *tally) bool {
	for start := 0; start < len(jobs); start += p.batchSize {
		if start > 0 && p.batchDelay > 0 {
			timer := time.NewTimer(p.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			p.logger.Info("ingestion canceled at batch boundary", "remaining", len(jobs)-start)
			return true
		}

		end := min(start+p.batchSize, len(jobs))
		batchCtx := context.WithoutCancel(ctx)
		var wg sync.WaitGroup
		for _, job := range jobs[start:end] {
			wg.Add(1)
			err := p.pool.Submit(func() {
				defer wg.Done()
				t.add(job(batchCtx))
			})
			if err != nil {
				wg.Done()
				p.logger.Warn("worker pool rejected job, running inline", "error", err)
				t.add(job(batchCtx))
			}
		}
		wg.Wait()

		t.mu.Lock()
		t.stats.Batches++
		t.mu.Unlock()
		p.logger.Debug("batch complete", "batch", start/p.batchSize+1, "items", end-start)
	}
	return false
}

// fetchAndIngest runs every stage for one catalog item.
func (p *Pipeline) fetchAndIngest(ctx context.Context, item core.CatalogItem) *result {
	res := &result{}
	fileName := catalog.FileName(item)
	job := &core.Job{Ref: item.ID, FileName: fileName, Stage: core.StageFetching}
	logger := p.logger.With("file", fileName, "ref", item.ID)

	norm := core.NormalizeFileName(fileName)
	if !p.claim(norm) {
		res.skippedDuplicate = true
		return res
	}
	defer p.release(norm)

	duplicate, err := p.isDuplicate(ctx, norm)
	if err != nil {
		res.failed = true
		res.note(job, fmt.Errorf("%w: dedup lookup: %w", ErrPersistence, err))
		return res
	}
	if duplicate {
		logger.Debug("already ingested")
		res.skippedDuplicate = true
		return res
	}

	data, err := p.catalog.Download(ctx, item)
	if err == nil && len(data) == 0 {
		err = catalog.ErrUnavailable
	}
	if err != nil {
		logger.Info("artifact unavailable, skipping", "error", err)
		res.skippedUnavailable = true
		res.note(job, err)
		return res
	}
	res.downloaded = true

	art := item.Artifacts[0]
	for _, a := range item.Artifacts {
		if catalog.IsDownloadable(a.DownloadURL) {
			art = a
			break
		}
	}
	meta := map[string]any{
		core.MetaCatalogID:   item.ID,
		core.MetaDownloadURL: catalog.DownloadURL(item),
	}
	setIf(meta, core.MetaCaseName, item.CaseName)
	setIf(meta, core.MetaCourt, item.Court)
	setIf(meta, core.MetaDocketNumber, item.DocketNumber)
	setIf(meta, core.MetaChecksum, art.Checksum)
	if !item.DateFiled.IsZero() {
		meta[core.MetaDateFiled] = item.DateFiled.UTC().Format(time.DateOnly)
	}

	_, _ = p.ingest(ctx, &document{
		job:         job,
		source:      core.SourceCatalog,
		title:       item.CaseName,
		contentType: art.ContentType,
		data:        data,
		meta:        meta,
	}, res)
	return res
}

func (p *Pipeline) isDuplicate(ctx context.Context, normalized string) (bool, error) {
	_, err := p.metadata.FindByNormalizedName(ctx, normalized)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func setIf(meta map[string]any, key, value string) {
	if value != "" {
		meta[key] = value
	}
}
