package catalog

import (
	"net/url"
	"path"
	"strings"

	"github.com/poiesic/lexsync/core"
)

var documentExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".rtf":  true,
	".html": true,
	".htm":  true,
}

// documentSegments are path segments that identify a document link even
// without a file extension.
var documentSegments = []string{"pdf", "opinion", "opinions", "download", "recap", "document", "documents", "storage"}

// IsDownloadable reports whether raw is non-blank and recognisable as a
// document link: an absolute http(s) URL or a storage-relative path that
// ends in a document extension or has a document-like path segment.
func IsDownloadable(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return false
		}
	case "":
		if u.Host != "" || u.Path == "" {
			return false
		}
	default:
		return false
	}

	p := strings.ToLower(u.Path)
	if documentExtensions[path.Ext(p)] {
		return true
	}
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		for _, doc := range documentSegments {
			if seg == doc {
				return true
			}
		}
	}
	return false
}

// HasUsableArtifact reports whether item carries at least one downloadable artifact.
func HasUsableArtifact(item core.CatalogItem) bool {
	return DownloadURL(item) != ""
}

// DownloadURL returns the first downloadable artifact URL of item, or "".
func DownloadURL(item core.CatalogItem) string {
	for _, a := range item.Artifacts {
		if IsDownloadable(a.DownloadURL) {
			return strings.TrimSpace(a.DownloadURL)
		}
	}
	return ""
}

// FileName derives the name a downloaded artifact is stored under. The
// catalog id is part of the name so that distinct items never share a dedup
// key, while the same item always maps to the same one.
func FileName(item core.CatalogItem) string {
	u := DownloadURL(item)
	if parsed, err := url.Parse(u); err == nil {
		base := path.Base(parsed.Path)
		if documentExtensions[strings.ToLower(path.Ext(base))] {
			return item.ID + "_" + base
		}
	}
	name := item.CaseName
	if name == "" {
		name = "document"
	}
	return item.ID + "_" + name + ".pdf"
}
