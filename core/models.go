package core

import (
	"time"
)

// Status tracks where a document record is in its lifecycle.
type Status string

const (
	// StatusProcessing marks a record whose row exists but which is not yet searchable.
	StatusProcessing Status = "processing"
	// StatusIndexed marks a record that has been projected into the search index.
	StatusIndexed Status = "indexed"
	// StatusFailed marks a record that needs a manual retry.
	StatusFailed Status = "failed"
)

// PIIStatus records the outcome of the (external) PII review.
type PIIStatus string

const (
	PIIUnchecked PIIStatus = "unchecked"
	PIIClean     PIIStatus = "clean"
	PIIFlagged   PIIStatus = "flagged"
)

// SummaryUnavailable is stored in place of a summary when summarization fails.
const SummaryUnavailable = "summary unavailable"

// Well-known keys inside DocumentRecord.Metadata.
const (
	MetaSource           = "source"
	MetaCatalogID        = "catalog_id"
	MetaCaseName         = "case_name"
	MetaCourt            = "court"
	MetaDocketNumber     = "docket_number"
	MetaDateFiled        = "date_filed"
	MetaDownloadURL      = "download_url"
	MetaChecksum         = "checksum"
	MetaPageCount        = "page_count"
	MetaExtractionMethod = "extraction_method"
	MetaEntities         = "entities"
	MetaCitations        = "citations"
	MetaConcepts         = "concepts"
	MetaFailureReason    = "failure_reason"
	MetaOrphanFlaggedAt  = "review.orphan_blob_missing"
)

// Extraction methods recorded under MetaExtractionMethod.
const (
	ExtractionTextLayer = "text_layer"
	ExtractionOCR       = "ocr"
	ExtractionNone      = "none"
)

// Document sources recorded under MetaSource.
const (
	SourceCatalog  = "catalog"
	SourceUpload   = "upload"
	SourceBackfill = "backfill"
)

// DocumentRecord is the relational metadata row for one stored document.
// FilePath is the BlobStore key and the join key between the stores.
type DocumentRecord struct {
	ID             string
	Title          string
	FileName       string
	NormalizedName string // dedup key derived from FileName
	FilePath       string
	FileType       string
	Status         Status
	PIIStatus      PIIStatus
	ExtractedText  *string
	Summary        *string
	ContentHash    string
	Metadata       map[string]any
	OwnerID        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BlobObject describes one object held by the BlobStore.
type BlobObject struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
}

// Chunk is a bounded slice of a document's extracted text.
type Chunk struct {
	Ordinal int
	Text    string
}

// Entity is a named legal entity (party, judge, court, statute...).
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Citation is a case citation found in a document, e.g. "347 U.S. 483".
type Citation struct {
	Cite     string `json:"cite"`
	Reporter string `json:"reporter,omitempty"`
}

// IndexDocument is the denormalized, query-only projection of a DocumentRecord.
type IndexDocument struct {
	ID        string
	Title     string
	FileName  string
	FileType  string
	Court     string
	DateFiled time.Time
	Content   string
	Summary   string
	Chunks    []Chunk
	Entities  []Entity
	Citations []Citation
	Concepts  []string
	UpdatedAt time.Time
}

// Artifact is one downloadable file attached to a catalog entry.
type Artifact struct {
	DownloadURL string
	Checksum    string
	ContentType string
}

// CatalogItem is a typed catalog search result.
type CatalogItem struct {
	ID           string
	CaseName     string
	Court        string
	DocketNumber string
	DateFiled    time.Time
	Artifacts    []Artifact
}

// SearchFilters narrows a catalog query. Zero values mean "unset".
type SearchFilters struct {
	Query       string
	Court       string
	FiledAfter  time.Time
	FiledBefore time.Time
	PageSize    int
	MaxResults  int
}

// Stage is a step of the per-document ingestion state machine.
type Stage int

const (
	StageFetching Stage = iota + 1
	StageExtracting
	StageSummarizing
	StagePersisting
	StageIndexing
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageFetching:
		return "fetching"
	case StageExtracting:
		return "extracting"
	case StageSummarizing:
		return "summarizing"
	case StagePersisting:
		return "persisting"
	case StageIndexing:
		return "indexing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is the ephemeral state of one item travelling through the pipeline.
// It is never persisted.
type Job struct {
	Ref       string
	FileName  string
	Stage     Stage
	Attempts  int
	LastError error
}

// ItemFailure records a per-item problem aggregated into a run summary.
type ItemFailure struct {
	Ref   string `json:"ref"`
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

// IngestionStats summarizes one ingestion run.
type IngestionStats struct {
	Total              int           `json:"total"`
	Downloaded         int           `json:"downloaded"`
	Processed          int           `json:"processed"`
	Failed             int           `json:"failed"`
	SkippedUnavailable int           `json:"skipped_unavailable"`
	SkippedDuplicate   int           `json:"skipped_duplicate"`
	OCRFallbacks       int           `json:"ocr_fallbacks"`
	SummaryUnavailable int           `json:"summary_unavailable"`
	IndexFailures      int           `json:"index_failures"`
	Batches            int           `json:"batches"`
	Canceled           bool          `json:"canceled"`
	Failures           []ItemFailure `json:"failures,omitempty"`
	Elapsed            time.Duration `json:"elapsed"`
}

// SyncReport is the outcome of one reconciliation pass.
type SyncReport struct {
	MissingMetadata             int           `json:"missing_metadata"`
	MissingIndex                int           `json:"missing_index"`
	OrphanMetadata              int           `json:"orphan_metadata"`
	PlaceholderArtifactsRemoved int           `json:"placeholder_artifacts_removed"`
	StatusRepaired              int           `json:"status_repaired"`
	OrphansPendingReview        int           `json:"orphans_pending_review"`
	DryRun                      bool          `json:"dry_run"`
	Failures                    []ItemFailure `json:"failures,omitempty"`
	StartedAt                   time.Time     `json:"started_at"`
	FinishedAt                  time.Time     `json:"finished_at"`
}

// Converged reports whether the pass found nothing to repair.
func (r *SyncReport) Converged() bool {
	return r.MissingMetadata == 0 &&
		r.MissingIndex == 0 &&
		r.OrphanMetadata == 0 &&
		r.PlaceholderArtifactsRemoved == 0 &&
		r.StatusRepaired == 0
}

// CleanupAnalysis is the read-only inventory report produced before a cleanup.
type CleanupAnalysis struct {
	TotalFiles       int `json:"total_files"`
	CanonicalFiles   int `json:"canonical_files"`
	LegacyTextFiles  int `json:"legacy_text_files"`
	PlaceholderFiles int `json:"placeholder_files"`
	RealTextFiles    int `json:"real_text_files"`
}
