package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/lexsync/core"
)

// searchResponse is one page of the catalog search endpoint.
type searchResponse struct {
	Count   *int           `json:"count"`
	Next    *string        `json:"next"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID           any               `json:"id"`
	CaseName     string            `json:"caseName"`
	Court        string            `json:"court"`
	CourtID      string            `json:"court_id"`
	DocketNumber string            `json:"docketNumber"`
	DateFiled    string            `json:"dateFiled"`
	Opinions     []artifactPayload `json:"opinions"`
}

type artifactPayload struct {
	DownloadURL string `json:"download_url"`
	LocalPath   string `json:"local_path"`
	SHA1        string `json:"sha1"`
	ContentType string `json:"content_type"`
}

func (r *searchResponse) validate() error {
	if r.Results == nil {
		return fmt.Errorf("%w: missing results", ErrBadResponse)
	}
	return nil
}

// toItem converts a validated wire result into a CatalogItem. Artifacts
// without a usable URL are dropped here; an item left with none is skipped.
func (r searchResult) toItem() (core.CatalogItem, bool) {
	id := idString(r.ID)
	if id == "" {
		return core.CatalogItem{}, false
	}
	item := core.CatalogItem{
		ID:           id,
		CaseName:     strings.TrimSpace(r.CaseName),
		Court:        firstNonEmpty(r.CourtID, r.Court),
		DocketNumber: strings.TrimSpace(r.DocketNumber),
	}
	if r.DateFiled != "" {
		if t, err := time.Parse(time.DateOnly, r.DateFiled); err == nil {
			item.DateFiled = t
		} else if t, err := time.Parse(time.RFC3339, r.DateFiled); err == nil {
			item.DateFiled = t
		}
	}
	for _, op := range r.Opinions {
		url := firstUsable(op.DownloadURL, op.LocalPath)
		if url == "" {
			continue
		}
		item.Artifacts = append(item.Artifacts, core.Artifact{
			DownloadURL: url,
			Checksum:    strings.TrimSpace(op.SHA1),
			ContentType: strings.TrimSpace(op.ContentType),
		})
	}
	return item, len(item.Artifacts) > 0
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstUsable(urls ...string) string {
	for _, u := range urls {
		if IsDownloadable(u) {
			return strings.TrimSpace(u)
		}
	}
	return ""
}
