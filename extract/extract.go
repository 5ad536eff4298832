// Package extract defines the contract for turning document bytes into text.
//
// Extraction has two methods: a direct text-layer read and an OCR pass.
// Extract runs the text layer first and falls back to OCR when the text layer
// carries too little meaningful content. Extraction never fails a document:
// when neither method produces text the outcome is empty.
package extract

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/poiesic/lexsync/core"
)

// DefaultMinLength is the meaningful-character threshold below which OCR is tried.
const DefaultMinLength = 100

var (
	// ErrUnsupported means the extractor cannot handle this file type or method.
	ErrUnsupported = errors.New("extraction not supported")

	// ErrNoText means the document was readable but yielded no text.
	ErrNoText = errors.New("no text extracted")
)

// Source is a document handed to an extractor.
type Source struct {
	FileName    string
	ContentType string
	Data        []byte
}

// FileType returns the normalized file type of the source.
func (s Source) FileType() string {
	return core.FileTypeOf(s.FileName, s.ContentType)
}

// Extractor reads text out of a document.
// Implementations must be safe for concurrent use.
type Extractor interface {
	// TextLayer returns text embedded in the document.
	TextLayer(ctx context.Context, src Source) (string, error)
	// OCR recognises text from the rendered document.
	OCR(ctx context.Context, src Source) (string, error)
}

// PageCounter is implemented by extractors that can count pages.
type PageCounter interface {
	PageCount(ctx context.Context, src Source) (int, error)
}

// MeaningfulLength counts the letters and digits in text.
func MeaningfulLength(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// Outcome is the result of Extract.
type Outcome struct {
	Text         string
	Method       string // core.ExtractionTextLayer, core.ExtractionOCR or core.ExtractionNone
	OCRAttempted bool
	// Errors collects method failures that were absorbed.
	Errors []error
}

// Extract applies the text-layer-then-OCR policy. A text layer with fewer than
// minLength meaningful characters is replaced by the OCR result, even an
// empty one. Only context cancellation is returned as an error.
func Extract(ctx context.Context, ex Extractor, src Source, minLength int) (Outcome, error) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	text, err := ex.TextLayer(ctx, src)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	out := Outcome{Method: core.ExtractionNone}
	if err != nil {
		out.Errors = append(out.Errors, err)
		text = ""
	}
	text = clean(text)
	if MeaningfulLength(text) >= minLength {
		out.Text = text
		out.Method = core.ExtractionTextLayer
		return out, nil
	}

	out.OCRAttempted = true
	ocr, err := ex.OCR(ctx, src)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	if err != nil {
		out.Errors = append(out.Errors, err)
		return out, nil
	}
	ocr = clean(ocr)
	if MeaningfulLength(ocr) == 0 {
		return out, nil
	}
	out.Text = ocr
	out.Method = core.ExtractionOCR
	return out, nil
}

// clean drops NULs and invalid UTF-8 and trims surrounding whitespace.
func clean(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
