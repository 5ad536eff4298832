// Package remote calls an external extraction service over HTTP.
//
// The service accepts POST <base>/extract with a JSON body
//
//	{"mode": "text"|"ocr", "file_name": "...", "content_type": "...", "content": "<base64>"}
//
// and answers {"text": "...", "pages": 3}. 415 and 422 mean the document
// cannot be handled in that mode.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/extract"
	"github.com/poiesic/lexsync/retry"
)

const (
	modeText = "text"
	modeOCR  = "ocr"
)

type request struct {
	Mode        string `json:"mode"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

type response struct {
	Text  *string `json:"text"`
	Pages int     `json:"pages"`
}

// Extractor is an HTTP client for the extraction service.
type Extractor struct {
	endpoint string
	token    string
	client   *http.Client
	policy   retry.Policy
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithToken(token string) Option {
	return func(e *Extractor) { e.token = token }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

func WithPolicy(p retry.Policy) Option {
	return func(e *Extractor) { e.policy = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New creates a remote extractor for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Extractor, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: extraction service url is required", config.ErrInvalidConfig)
	}
	e := &Extractor{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/extract",
		client:   &http.Client{},
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Extractor) TextLayer(ctx context.Context, src extract.Source) (string, error) {
	resp, err := e.call(ctx, modeText, src)
	if err != nil {
		return "", err
	}
	return *resp.Text, nil
}

func (e *Extractor) OCR(ctx context.Context, src extract.Source) (string, error) {
	resp, err := e.call(ctx, modeOCR, src)
	if err != nil {
		return "", err
	}
	return *resp.Text, nil
}

// PageCount uses the page count reported by a text-mode call.
func (e *Extractor) PageCount(ctx context.Context, src extract.Source) (int, error) {
	resp, err := e.call(ctx, modeText, src)
	if err != nil {
		return 0, err
	}
	if resp.Pages <= 0 {
		return 0, fmt.Errorf("%w: service reported no page count", extract.ErrUnsupported)
	}
	return resp.Pages, nil
}

func (e *Extractor) call(ctx context.Context, mode string, src extract.Source) (*response, error) {
	body, err := json.Marshal(request{
		Mode:        mode,
		FileName:    src.FileName,
		ContentType: src.ContentType,
		Content:     base64.StdEncoding.EncodeToString(src.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("encode extraction request: %w", err)
	}

	var out response
	err = retry.Do(ctx, e.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.token != "" {
			req.Header.Set("Authorization", "Bearer "+e.token)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.Transient(err)
		}
		defer resp.Body.Close()
		payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return retry.Transient(err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			out = response{}
			if err := json.Unmarshal(payload, &out); err != nil {
				return fmt.Errorf("decode extraction response: %w", err)
			}
			if out.Text == nil {
				return fmt.Errorf("extraction response missing text")
			}
			return nil
		case resp.StatusCode == http.StatusUnsupportedMediaType, resp.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s mode for %s", extract.ErrUnsupported, mode, src.FileName)
		case resp.StatusCode == http.StatusTooManyRequests:
			return &retry.RateLimitError{Cause: fmt.Errorf("extraction service status %d", resp.StatusCode)}
		case resp.StatusCode >= 500:
			return retry.Transient(fmt.Errorf("extraction service status %d", resp.StatusCode))
		default:
			return fmt.Errorf("extraction service status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
		}
	})
	if err != nil {
		e.logger.Debug("remote extraction failed", "mode", mode, "file", src.FileName, "error", err)
		return nil, err
	}
	return &out, nil
}
