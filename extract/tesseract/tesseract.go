// Package tesseract runs OCR over image documents with Tesseract.
// It requires the tesseract and leptonica shared libraries at runtime.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/poiesic/lexsync/extract"
)

// minHeight is the height small scans are upscaled to before recognition.
const minHeight = 1300

// Extractor performs image OCR. The gosseract client is not goroutine safe,
// so each call creates its own.
type Extractor struct {
	languages []string
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLanguages sets the tesseract language packs, default "eng".
func WithLanguages(langs ...string) Option {
	return func(e *Extractor) {
		if len(langs) > 0 {
			e.languages = langs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{languages: []string{"eng"}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TextLayer is not provided by OCR.
func (e *Extractor) TextLayer(context.Context, extract.Source) (string, error) {
	return "", fmt.Errorf("%w: tesseract text layer", extract.ErrUnsupported)
}

// OCR recognises text in png, jpg and tiff images.
func (e *Extractor) OCR(ctx context.Context, src extract.Source) (string, error) {
	switch src.FileType() {
	case "png", "jpg", "tiff", "gif", "bmp":
	default:
		return "", fmt.Errorf("%w: ocr of %s", extract.ErrUnsupported, src.FileType())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("ocr decode: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Preprocess(img), imaging.PNG); err != nil {
		return "", fmt.Errorf("ocr encode: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.languages...); err != nil {
		return "", fmt.Errorf("ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	text = NormalizeText(text)
	e.logger.Debug("ocr complete", "file", src.FileName, "chars", len(text))
	return text, nil
}

// Preprocess converts a scan to a high-contrast grayscale image suitable for OCR.
func Preprocess(img image.Image) *image.NRGBA {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < minHeight/2 {
		gray = imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}
	return gray
}

var (
	ocrSpaces  = regexp.MustCompile(`[ \t]+`)
	ocrHyphens = regexp.MustCompile(`(\w)-\n(\w)`)
)

// NormalizeText joins words hyphenated across lines and collapses blank runs.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = ocrHyphens.ReplaceAllString(s, "$1$2")
	s = ocrSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
