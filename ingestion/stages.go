package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/poiesic/lexsync/ai"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/extract"
	"github.com/poiesic/lexsync/storage"
)

// document is one item whose bytes are in hand.
type document struct {
	job         *core.Job
	source      string
	title       string
	owner       string
	contentType string
	data        []byte
	meta        map[string]any

	// key is the blob key when the content already lives in the blob store
	// (backfill, retry). Empty means the bytes still have to be uploaded.
	key string
	// existing is the row being reprocessed by a retry.
	existing *core.DocumentRecord
}

// result collects what happened to one item for the run statistics.
type result struct {
	downloaded         bool
	skippedUnavailable bool
	skippedDuplicate   bool
	ocr                bool
	summaryUnavailable bool
	indexFailed        bool
	failed             bool
	failures           []core.ItemFailure
}

func (r *result) note(job *core.Job, err error) {
	job.LastError = err
	r.failures = append(r.failures, core.ItemFailure{
		Ref:   job.Ref,
		Stage: job.Stage.String(),
		Err:   err.Error(),
	})
}

// ingest runs Extracting through Indexing. It returns an error only when the
// item could not be persisted (wrapping ErrPersistence), was a duplicate
// (ErrDuplicate) or the context ended.
func (p *Pipeline) ingest(ctx context.Context, d *document, res *result) (*core.DocumentRecord, error) {
	job := d.job
	logger := p.logger.With("file", job.FileName, "ref", job.Ref)

	job.Stage = core.StageExtracting
	src := extract.Source{FileName: job.FileName, ContentType: d.contentType, Data: d.data}
	out, err := extract.Extract(ctx, p.extractor, src, p.minTextLength)
	if err != nil {
		return nil, err
	}
	if out.OCRAttempted {
		res.ocr = true
		logger.Debug("text layer below threshold, used OCR", "method", out.Method)
	}
	for _, e := range out.Errors {
		if !errors.Is(e, extract.ErrUnsupported) {
			logger.Warn("extraction method failed", "error", e)
		}
	}
	meta := make(map[string]any, len(d.meta)+8)
	maps.Copy(meta, d.meta)
	meta[core.MetaSource] = d.source
	meta[core.MetaExtractionMethod] = out.Method
	if counter, ok := p.extractor.(extract.PageCounter); ok && src.FileType() == "pdf" {
		if pages, err := counter.PageCount(ctx, src); err == nil {
			meta[core.MetaPageCount] = pages
		}
	}

	job.Stage = core.StageSummarizing
	summary := p.summarize(ctx, logger, job, out.Text, d.title)
	if summary == nil {
		res.summaryUnavailable = true
	} else {
		meta[core.MetaEntities] = summary.Entities
		meta[core.MetaCitations] = summary.Citations
		meta[core.MetaConcepts] = summary.Concepts
	}

	job.Stage = core.StagePersisting
	rec, err := p.persist(ctx, d, out.Text, summary, meta)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			res.skippedDuplicate = true
			logger.Info("skipping duplicate document")
			return nil, err
		}
		res.failed = true
		res.note(job, err)
		job.Stage = core.StageFailed
		logger.Error("persisting document failed", "error", err)
		return nil, err
	}

	job.Stage = core.StageIndexing
	if err := p.project(ctx, rec); err != nil {
		res.indexFailed = true
		res.note(job, err)
		logger.Warn("indexing failed, left for reconciliation", "id", rec.ID, "error", err)
	}
	job.Stage = core.StageDone
	logger.Info("document ingested", "id", rec.ID, "status", rec.Status, "method", out.Method)
	return rec, nil
}

// summarize returns nil when no summary could be produced.
func (p *Pipeline) summarize(ctx context.Context, logger *slog.Logger, job *core.Job, text, title string) *ai.Summary {
	if text == "" {
		return nil
	}
	if p.summaryLimiter != nil {
		if err := p.summaryLimiter.Wait(ctx); err != nil {
			return nil
		}
	}
	s, err := p.summarizer.Summarize(ctx, ai.SummaryRequest{
		FileName: job.FileName,
		Title:    title,
		Text:     text,
	})
	if err == nil && (s == nil || s.Text == "") {
		err = ai.ErrEmptySummary
	}
	if err != nil {
		logger.Warn("summarization failed, storing sentinel", "error", err)
		return nil
	}
	return s
}

func (p *Pipeline) persist(ctx context.Context, d *document, text string, summary *ai.Summary, meta map[string]any) (*core.DocumentRecord, error) {
	fresh := d.key == ""
	if fresh {
		key := core.BlobKey(d.job.FileName, p.now())
		if _, err := p.blobs.Upload(ctx, key, d.data, d.contentType); err != nil {
			return nil, fmt.Errorf("%w: upload %s: %w", ErrPersistence, key, err)
		}
		d.key = key
	}

	summaryText := core.SummaryUnavailable
	if summary != nil {
		summaryText = summary.Text
	}
	now := p.now().UTC()
	rec := &core.DocumentRecord{
		ID:             core.DocumentID(d.key),
		Title:          d.title,
		FileName:       d.job.FileName,
		NormalizedName: core.NormalizeFileName(d.job.FileName),
		FilePath:       d.key,
		FileType:       core.FileTypeOf(d.job.FileName, d.contentType),
		Status:         core.StatusProcessing,
		PIIStatus:      core.PIIUnchecked,
		ExtractedText:  &text,
		Summary:        &summaryText,
		ContentHash:    core.ContentHash(d.data),
		Metadata:       meta,
		OwnerID:        d.owner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if rec.Title == "" {
		rec.Title = core.TitleFromFileName(d.job.FileName)
	}

	var err error
	if d.existing != nil {
		rec.ID = d.existing.ID
		rec.CreatedAt = d.existing.CreatedAt
		rec.PIIStatus = d.existing.PIIStatus
		rec.OwnerID = d.existing.OwnerID
		merged := make(map[string]any, len(d.existing.Metadata)+len(meta))
		maps.Copy(merged, d.existing.Metadata)
		maps.Copy(merged, meta)
		delete(merged, core.MetaFailureReason)
		rec.Metadata = merged
		err = p.metadata.Update(ctx, rec)
	} else {
		err = p.metadata.Create(ctx, rec)
	}
	if err == nil {
		return rec, nil
	}

	if errors.Is(err, storage.ErrDuplicateKey) {
		if fresh {
			// A reconciliation pass may have backfilled the new blob between
			// the upload and the insert. Its row owns the blob now.
			owner, lerr := p.metadata.GetByPath(context.WithoutCancel(ctx), d.key)
			switch {
			case lerr == nil:
				p.logger.Info("blob already recorded by a concurrent backfill", "key", d.key, "id", owner.ID)
				return owner, nil
			case errors.Is(lerr, storage.ErrNotFound):
				p.deleteBlob(ctx, d.key)
			default:
				p.logger.Warn("keeping uploaded blob, owner lookup failed", "key", d.key, "error", lerr)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, d.key)
	}
	p.compensate(ctx, d.key, fresh, err)
	return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
}

// compensate leaves the stores in a state a later retry can pick up: a
// visible row is marked failed and keeps its blob. A blob uploaded by this
// attempt is removed only when no row is known to reference it.
func (p *Pipeline) compensate(ctx context.Context, key string, fresh bool, cause error) {
	ctx = context.WithoutCancel(ctx)
	rec, err := p.metadata.GetByPath(ctx, key)
	if err == nil {
		if rec.Status != core.StatusProcessing {
			return
		}
		rec.Status = core.StatusFailed
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		rec.Metadata[core.MetaFailureReason] = cause.Error()
		if err := p.metadata.Update(ctx, rec); err != nil {
			if err := p.metadata.UpdateStatus(ctx, rec.ID, core.StatusFailed); err != nil {
				p.logger.Error("marking partial record failed", "id", rec.ID, "error", err)
			}
		}
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		p.logger.Warn("keeping uploaded blob, owner lookup failed", "key", key, "error", err)
		return
	}
	if fresh {
		p.deleteBlob(ctx, key)
	}
}

func (p *Pipeline) deleteBlob(ctx context.Context, key string) {
	if err := p.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		p.logger.Warn("removing uploaded blob failed", "key", key, "error", err)
	}
}

// project upserts the record into the search index and flips it to indexed.
func (p *Pipeline) project(ctx context.Context, rec *core.DocumentRecord) error {
	if err := p.index.Upsert(ctx, core.Project(rec)); err != nil {
		return fmt.Errorf("%w: %w", ErrIndex, err)
	}
	if rec.Status != core.StatusProcessing {
		return nil
	}
	if err := p.metadata.UpdateStatus(ctx, rec.ID, core.StatusIndexed); err != nil {
		return fmt.Errorf("%w: status of %s: %w", ErrIndex, rec.ID, err)
	}
	rec.Status = core.StatusIndexed
	return nil
}

// Reproject rebuilds the index entry of an existing record without
// re-extracting it. A processing record becomes indexed; failed records are
// projected but keep their status.
func (p *Pipeline) Reproject(ctx context.Context, rec *core.DocumentRecord) error {
	if rec == nil {
		return storage.ErrNotFound
	}
	return p.project(ctx, rec)
}
