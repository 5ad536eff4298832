package storage

import (
	"time"
)

// DefaultSearchSize is used when Query.Size is zero.
const DefaultSearchSize = 20

// Query describes a full-text search.
type Query struct {
	Text        string
	FileTypes   []string
	Court       string
	FiledAfter  time.Time
	FiledBefore time.Time
	Size        int
}

// Hit is one ranked search result.
type Hit struct {
	ID         string
	Title      string
	FileName   string
	FileType   string
	Court      string
	DateFiled  time.Time
	Score      float64
	Highlights []string
}

// FacetCount is one bucket of a facet aggregation.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets aggregates the matching documents (before Size is applied).
type Facets struct {
	FileType []FacetCount `json:"file_type"`
	Court    []FacetCount `json:"court"`
	Year     []FacetCount `json:"year"`
}

// SearchResult is the response of SearchIndex.Search.
type SearchResult struct {
	Hits   []Hit
	Total  int
	Facets Facets
}
