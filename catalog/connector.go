package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/retry"
)

const (
	// DefaultPageSize is used when SearchFilters.PageSize is zero.
	DefaultPageSize = 20

	// MaxDownloadBytes caps a single artifact download.
	MaxDownloadBytes = 100 << 20

	maxPages = 500
)

// Config describes how to reach the catalog.
type Config struct {
	// BaseURL is the catalog REST root, e.g. https://www.courtlistener.com/api/rest/v4.
	BaseURL string
	// Token is sent as "Authorization: Token <Token>".
	Token string
	// ProxyURL, if set, is the authenticated download boundary. Downloads
	// become GET <ProxyURL>?url=<target>.
	ProxyURL string
	// StorageURL resolves storage-relative artifact paths.
	StorageURL string
	// RequestsPerSecond throttles every outbound request. Zero disables throttling.
	RequestsPerSecond float64
	// Policy bounds retries of each request.
	Policy retry.Policy
}

// Connector queries the catalog and downloads artifacts.
type Connector struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector) error

// WithLogger sets the logger for the connector.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) error {
		c.logger = logger
		return nil
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) error {
		if client == nil {
			return fmt.Errorf("%w: nil http client", config.ErrInvalidConfig)
		}
		c.client = client
		return nil
	}
}

// New creates a Connector. It fails fast when the credential is missing.
func New(cfg Config, opts ...Option) (*Connector, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: catalog token", config.ErrMissingCredential)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: catalog base url %q", config.ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.ProxyURL != "" {
		if _, err := url.Parse(cfg.ProxyURL); err != nil {
			return nil, fmt.Errorf("%w: catalog proxy url: %w", config.ErrInvalidConfig, err)
		}
	}
	if cfg.StorageURL == "" {
		cfg.StorageURL = base.Scheme + "://" + base.Host + "/"
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if cfg.Policy.MaxAttempts < 0 {
		return nil, retry.ErrInvalidMaxAttempts
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Connector{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Search pages through the catalog and returns the items that carry a usable
// artifact. It stops at filters.MaxResults items when that is positive.
func (c *Connector) Search(ctx context.Context, filters core.SearchFilters) ([]core.CatalogItem, error) {
	next := c.searchURL(filters)
	seen := make(map[string]bool)
	var items []core.CatalogItem
	skipped := 0

	for page := 0; next != "" && page < maxPages; page++ {
		if seen[next] {
			break
		}
		seen[next] = true

		var resp searchResponse
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return items, fmt.Errorf("catalog search: %w", err)
		}
		if err := resp.validate(); err != nil {
			return items, err
		}

		for _, r := range resp.Results {
			item, ok := r.toItem()
			if !ok {
				skipped++
				continue
			}
			items = append(items, item)
			if filters.MaxResults > 0 && len(items) >= filters.MaxResults {
				c.logger.Debug("catalog search reached max results", "items", len(items), "skipped", skipped)
				return items, nil
			}
		}

		next = ""
		if resp.Next != nil && *resp.Next != "" {
			if !c.sameHost(*resp.Next) {
				c.logger.Warn("catalog next link leaves the catalog host, stopping", "next", redact(*resp.Next))
				break
			}
			next = *resp.Next
		}
	}

	c.logger.Debug("catalog search complete", "items", len(items), "skipped", skipped)
	return items, nil
}

func (c *Connector) searchURL(f core.SearchFilters) string {
	q := url.Values{}
	q.Set("type", "o")
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Court != "" {
		q.Set("court", f.Court)
	}
	if !f.FiledAfter.IsZero() {
		q.Set("filed_after", f.FiledAfter.Format(time.DateOnly))
	}
	if !f.FiledBefore.IsZero() {
		q.Set("filed_before", f.FiledBefore.Format(time.DateOnly))
	}
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	q.Set("page_size", strconv.Itoa(size))
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/search/?" + q.Encode()
}

func (c *Connector) getJSON(ctx context.Context, target string, out any) error {
	return retry.Do(ctx, c.cfg.Policy, func(ctx context.Context) error {
		body, err := c.fetch(ctx, target, c.sameHost(target))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %w", ErrBadResponse, err)
		}
		return nil
	})
}

// Download retrieves the bytes of item's first usable artifact. Throttled and
// transient failures are retried; anything else, including an exhausted
// retry budget, is reported as ErrUnavailable.
func (c *Connector) Download(ctx context.Context, item core.CatalogItem) ([]byte, error) {
	target := DownloadURL(item)
	if target == "" {
		return nil, fmt.Errorf("%w: item %s: %w", ErrUnavailable, item.ID, ErrNoArtifact)
	}
	resolved, err := c.resolve(target)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s: %w", ErrUnavailable, item.ID, err)
	}

	requestURL := resolved
	authorize := c.sameHost(resolved)
	if c.cfg.ProxyURL != "" {
		requestURL = c.cfg.ProxyURL + "?" + url.Values{"url": {resolved}}.Encode()
		authorize = true
	}

	var data []byte
	err = retry.Do(ctx, c.cfg.Policy, func(ctx context.Context) error {
		body, err := c.fetch(ctx, requestURL, authorize)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnavailable) {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		return nil, fmt.Errorf("%w: item %s: %w", ErrUnavailable, item.ID, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: item %s: empty body", ErrUnavailable, item.ID)
	}
	return data, nil
}

func (c *Connector) resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(c.cfg.StorageURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func (c *Connector) sameHost(target string) bool {
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	b, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(t.Host, b.Host)
}

// fetch performs one throttled GET and classifies the outcome for retry.Do.
func (c *Connector) fetch(ctx context.Context, target string, authorize bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if authorize {
		req.Header.Set("Authorization", "Token "+c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json, application/pdf, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, retry.Transient(err)
		}
		if len(body) > MaxDownloadBytes {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUnavailable, MaxDownloadBytes)
		}
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("catalog throttled request", "url", redact(target), "retryAfter", resp.Header.Get("Retry-After"))
		return nil, &retry.RateLimitError{
			After: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Cause: fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, retry.Transient(fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// redact drops the query string, which may carry the proxied target.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
