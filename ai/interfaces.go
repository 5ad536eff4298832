package ai

import (
	"context"

	"github.com/poiesic/lexsync/core"
)

// Summarizer produces a summary and structured legal annotations for a document.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize analyzes the request text. Callers treat any error as a
	// soft failure and store core.SummaryUnavailable instead.
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
}

// SummaryRequest is the input to a Summarizer.
type SummaryRequest struct {
	FileName string
	Title    string
	Text     string
}

// Summary is the structured output of a Summarizer.
type Summary struct {
	Text      string
	Entities  []core.Entity
	Citations []core.Citation
	Concepts  []string
}

// EntityTypes are the categories a model may assign to a legal entity.
var EntityTypes = []string{
	"party",
	"judge",
	"court",
	"attorney",
	"statute",
	"agency",
	"organization",
	"location",
}
