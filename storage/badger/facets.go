package badger

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

const (
	snippetWords   = 24
	maxHighlights  = 3
	highlightOpen  = "<em>"
	highlightClose = "</em>"
)

func buildFacets(matched []scoredDoc) storage.Facets {
	fileTypes := make(map[string]int)
	courts := make(map[string]int)
	years := make(map[string]int)
	for _, m := range matched {
		if m.doc.FileType != "" {
			fileTypes[m.doc.FileType]++
		}
		if m.doc.Court != "" {
			courts[m.doc.Court]++
		}
		if !m.doc.DateFiled.IsZero() {
			years[strconv.Itoa(m.doc.DateFiled.Year())]++
		}
	}
	return storage.Facets{
		FileType: buckets(fileTypes),
		Court:    buckets(courts),
		Year:     buckets(years),
	}
}

func buckets(counts map[string]int) []storage.FacetCount {
	out := make([]storage.FacetCount, 0, len(counts))
	for value, count := range counts {
		out = append(out, storage.FacetCount{Value: value, Count: count})
	}
	slices.SortFunc(out, func(a, b storage.FacetCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out
}

// highlight returns snippets around the first matching words of up to
// maxHighlights chunks, with matches wrapped in <em> tags.
func highlight(doc *core.IndexDocument, a *Analyzer, terms map[string]struct{}) []string {
	if len(terms) == 0 {
		return nil
	}
	sources := make([]string, 0, len(doc.Chunks)+1)
	for _, c := range doc.Chunks {
		sources = append(sources, c.Text)
	}
	if len(sources) == 0 && doc.Content != "" {
		sources = append(sources, doc.Content)
	}
	if doc.Summary != "" {
		sources = append(sources, doc.Summary)
	}

	var out []string
	for _, text := range sources {
		if snippet, ok := snippetFor(text, a, terms); ok {
			out = append(out, snippet)
			if len(out) == maxHighlights {
				break
			}
		}
	}
	return out
}

func snippetFor(text string, a *Analyzer, terms map[string]struct{}) (string, bool) {
	words := strings.Fields(text)
	first := -1
	marked := make([]string, len(words))
	for i, w := range words {
		marked[i] = w
		for _, tok := range tokenize(w) {
			if _, ok := terms[a.Fold(tok)]; ok {
				marked[i] = highlightOpen + w + highlightClose
				if first < 0 {
					first = i
				}
				break
			}
		}
	}
	if first < 0 {
		return "", false
	}
	start := max(0, first-snippetWords/3)
	end := min(len(words), start+snippetWords)
	return strings.Join(marked[start:end], " "), true
}
