package badger

import (
	"slices"
	"strings"
	"unicode"
)

// analyzerVersion is bumped whenever tokenization changes in a way that
// requires a reindex.
const analyzerVersion = 1

// DefaultStopwords are dropped at index and query time.
var DefaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has",
	"have", "in", "is", "it", "its", "of", "on", "or", "that", "the", "their",
	"this", "to", "was", "were", "will", "with",
	"aforesaid", "hereby", "herein", "hereinafter", "hereto", "said",
	"thereof", "therein", "whereas", "whereby",
}

// DefaultSynonyms are folded onto the first term of each group.
var DefaultSynonyms = [][]string{
	{"v", "vs", "versus"},
	{"appellant", "petitioner"},
	{"appellee", "respondent"},
	{"plaintiff", "claimant", "complainant"},
	{"attorney", "counsel", "lawyer"},
	{"judgment", "judgement"},
	{"holding", "ruling", "decision"},
	{"statute", "act", "enactment"},
}

// Analyzer turns text into index terms.
type Analyzer struct {
	stopwords map[string]struct{}
	synonyms  map[string]string
}

// NewAnalyzer builds an analyzer from stopwords and synonym groups.
func NewAnalyzer(stopwords []string, synonyms [][]string) *Analyzer {
	a := &Analyzer{
		stopwords: make(map[string]struct{}, len(stopwords)),
		synonyms:  make(map[string]string),
	}
	for _, w := range stopwords {
		a.stopwords[strings.ToLower(w)] = struct{}{}
	}
	for _, group := range synonyms {
		if len(group) == 0 {
			continue
		}
		canonical := strings.ToLower(group[0])
		for _, w := range group {
			a.synonyms[strings.ToLower(w)] = canonical
		}
	}
	return a
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Fold maps a token to its index term, or "" if it is a stopword.
func (a *Analyzer) Fold(token string) string {
	if _, stop := a.stopwords[token]; stop {
		return ""
	}
	if canonical, ok := a.synonyms[token]; ok {
		return canonical
	}
	return token
}

// Terms returns the term frequencies of text.
func (a *Analyzer) Terms(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokenize(text) {
		if term := a.Fold(tok); term != "" {
			freq[term]++
		}
	}
	return freq
}

// QueryTerms returns the distinct terms of a query, in order of appearance.
func (a *Analyzer) QueryTerms(text string) []string {
	var out []string
	for _, tok := range tokenize(text) {
		if term := a.Fold(tok); term != "" && !slices.Contains(out, term) {
			out = append(out, term)
		}
	}
	return out
}
