package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzer_Terms(t *testing.T) {
	a := NewAnalyzer(DefaultStopwords, DefaultSynonyms)

	terms := a.Terms("The Petitioner, versus the Board of Education; appellant appeals.")
	assert.Equal(t, 2, terms["appellant"], "petitioner folds onto appellant")
	assert.Equal(t, 1, terms["v"], "versus folds onto v")
	assert.Equal(t, 1, terms["board"])
	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "of")
}

func TestAnalyzer_QueryTerms(t *testing.T) {
	a := NewAnalyzer(DefaultStopwords, DefaultSynonyms)
	assert.Equal(t, []string{"brown", "v", "board"}, a.QueryTerms("Brown vs. the Board, Brown"))
	assert.Empty(t, a.QueryTerms("the of and"))
}

func TestWithinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		k    int
		want bool
	}{
		{"negligence", "negligence", 0, true},
		{"negligence", "negligense", 1, true},
		{"negligence", "neglgense", 2, true},
		{"negligence", "diligence", 2, false},
		{"tort", "torts", 1, true},
		{"tort", "court", 1, false},
		{"", "ab", 2, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withinDistance(tt.a, tt.b, tt.k), "%s/%s/%d", tt.a, tt.b, tt.k)
	}
}

func TestMaxEdits(t *testing.T) {
	assert.Equal(t, 0, maxEdits("tax"))
	assert.Equal(t, 1, maxEdits("tort"))
	assert.Equal(t, 2, maxEdits("contract"))
}
