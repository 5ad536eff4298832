package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

// Upload is a manually submitted document.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
	Title       string
	OwnerID     string
	Metadata    map[string]any
}

// IngestUpload runs a manual upload through extraction, summarization,
// persistence and indexing. It returns ErrDuplicate when a document with the
// same normalized file name exists, and an ErrPersistence error when the
// record could not be stored. Extraction, summary and index problems only
// degrade the returned record.
func (p *Pipeline) IngestUpload(ctx context.Context, up Upload) (*core.DocumentRecord, error) {
	if up.FileName == "" {
		return nil, core.ErrEmptyFileName
	}
	if len(up.Data) == 0 {
		return nil, ErrEmptyDocument
	}
	norm := core.NormalizeFileName(up.FileName)
	if !p.claim(norm) {
		return nil, fmt.Errorf("%w: %s is being ingested", ErrDuplicate, up.FileName)
	}
	defer p.release(norm)

	duplicate, err := p.isDuplicate(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("%w: dedup lookup: %w", ErrPersistence, err)
	}
	if duplicate {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, up.FileName)
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = core.ContentTypeOf(core.FileTypeOf(up.FileName, ""))
	}
	return p.ingest(ctx, &document{
		job:         &core.Job{Ref: up.FileName, FileName: up.FileName, Stage: core.StageExtracting},
		source:      core.SourceUpload,
		title:       up.Title,
		owner:       up.OwnerID,
		contentType: contentType,
		data:        up.Data,
		meta:        up.Metadata,
	}, &result{})
}

// Backfill creates the record for a blob that has none, reading its content
// from the blob store. The fetch stage is skipped and the blob is never
// rewritten or removed. It returns ErrDuplicate if the key already has a record.
func (p *Pipeline) Backfill(ctx context.Context, key string) (*core.DocumentRecord, error) {
	if _, err := p.metadata.GetByPath(ctx, key); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, key)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup %s: %w", ErrPersistence, key, err)
	}
	data, err := p.blobs.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	fileName := core.FileNameFromKey(key)
	return p.ingest(ctx, &document{
		job:         &core.Job{Ref: key, FileName: fileName, Stage: core.StageExtracting},
		source:      core.SourceBackfill,
		contentType: core.ContentTypeOf(core.FileTypeOf(fileName, "")),
		data:        data,
		key:         key,
	}, &result{})
}

// RetryFailed sends every failed record back through processing. Each record
// re-enters processing, its content is re-read from the blob store and its
// text, summary and index entry are recomputed. Retries run in batches like
// a catalog run.
func (p *Pipeline) RetryFailed(ctx context.Context) (*core.IngestionStats, error) {
	start := time.Now()
	stats := &core.IngestionStats{}
	failed, err := p.metadata.ListByStatus(ctx, core.StatusFailed)
	if err != nil {
		return stats, fmt.Errorf("listing failed records: %w", err)
	}
	stats.Total = len(failed)
	p.logger.Info("retrying failed documents", "count", len(failed))

	jobs := make([]func(context.Context) *result, len(failed))
	for i, rec := range failed {
		jobs[i] = func(ctx context.Context) *result { return p.retry(ctx, rec) }
	}
	stats.Canceled = p.runBatches(ctx, jobs, &tally{stats: stats})
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (p *Pipeline) retry(ctx context.Context, rec *core.DocumentRecord) *result {
	res := &result{}
	job := &core.Job{Ref: rec.ID, FileName: rec.FileName, Stage: core.StageFetching, Attempts: 1}

	if err := p.metadata.UpdateStatus(ctx, rec.ID, core.StatusProcessing); err != nil {
		res.failed = true
		res.note(job, fmt.Errorf("%w: %w", ErrPersistence, err))
		return res
	}
	rec.Status = core.StatusProcessing

	data, err := p.blobs.Download(ctx, rec.FilePath)
	if err != nil {
		if serr := p.metadata.UpdateStatus(ctx, rec.ID, core.StatusFailed); serr != nil {
			p.logger.Error("restoring failed status", "id", rec.ID, "error", serr)
		}
		res.failed = true
		res.note(job, fmt.Errorf("reading blob %s: %w", rec.FilePath, err))
		return res
	}
	res.downloaded = true

	contentType := core.ContentTypeOf(rec.FileType)
	_, _ = p.ingest(ctx, &document{
		job:         job,
		source:      sourceOf(rec),
		title:       rec.Title,
		owner:       rec.OwnerID,
		contentType: contentType,
		data:        data,
		key:         rec.FilePath,
		existing:    rec,
	}, res)
	return res
}

func sourceOf(rec *core.DocumentRecord) string {
	if s, ok := rec.Metadata[core.MetaSource].(string); ok && s != "" {
		return s
	}
	return core.SourceUpload
}
