package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/retry"
)

func TestExtractCitations(t *testing.T) {
	text := `See Brown v. Board of Education, 347 U.S. 483 (1954); Plessy, 163 U.S. 537.
Also 123 F. Supp. 2d 456 and 987 F.3d 12, and again 347 U.S. 483. Not a cite: 12 apples 34.
The court relied on 540 S. Ct. 1 and 75 L. Ed. 2d 100.`

	got := ExtractCitations(text)
	cites := make([]string, len(got))
	for i, c := range got {
		cites[i] = c.Cite
	}
	assert.Equal(t, []string{
		"347 U.S. 483",
		"163 U.S. 537",
		"123 F. Supp. 2d 456",
		"987 F.3d 12",
		"540 S. Ct. 1",
		"75 L. Ed. 2d 100",
	}, cites)
	assert.Equal(t, "F. Supp. 2d", got[2].Reporter)
}

func TestExtractCitations_None(t *testing.T) {
	assert.Empty(t, ExtractCitations("no citations here, only 3 words"))
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"preamble", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"missing key quote", `{"a":1, b":2}`, `{"a":1, "b":2}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"untouched", `{"summary":"x, y"}`, `{"summary":"x, y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelJSON(tt.in))
		})
	}
}

func TestParseSummary(t *testing.T) {
	raw := "```json\n" + `{
  "summary": "  The Court held that segregation violates equal protection. ",
  "entities": [
    {"name": "Brown", "type": "Party"},
    {"name": "Brown", "type": "party"},
    {"name": "Supreme Court", "type": "court"},
    {"name": "", "type": "judge"}
  ],
  "citations": ["347 U.S. 483", {"cite": "163 U.S. 537"}, 42],
  "concepts": ["Equal Protection", "equal protection", "segregation"]
}` + "\n```"

	s, err := ParseSummary(raw)
	require.NoError(t, err)

	assert.Equal(t, "The Court held that segregation violates equal protection.", s.Text)
	assert.Equal(t, []core.Entity{{Name: "Brown", Type: "party"}, {Name: "Supreme Court", Type: "court"}}, s.Entities)
	assert.Equal(t, []core.Citation{{Cite: "347 U.S. 483"}, {Cite: "163 U.S. 537"}}, s.Citations)
	assert.Equal(t, []string{"equal protection", "segregation"}, s.Concepts)
}

func TestParseSummary_Errors(t *testing.T) {
	_, err := ParseSummary("not json")
	assert.Error(t, err)

	_, err = ParseSummary(`{"summary": "   ", "entities": []}`)
	assert.ErrorIs(t, err, ErrEmptySummary)
}

func TestFinalize(t *testing.T) {
	s := &Summary{Text: "x", Citations: []core.Citation{{Cite: "347 U. S. 483"}, {Cite: "347 U.S. 483"}, {Cite: "Roe"}}}
	Finalize(s, "cites 347 U.S. 483 and 410 U.S. 113")

	assert.Equal(t, []core.Citation{
		{Cite: "347 U.S. 483", Reporter: "U.S."},
		{Cite: "Roe"},
		{Cite: "410 U.S. 113", Reporter: "U.S."},
	}, s.Citations)
}

func TestPrompts(t *testing.T) {
	sys := SystemPrompt()
	assert.Contains(t, sys, "statute")
	assert.Contains(t, sys, `"citations"`)

	user := UserPrompt(SummaryRequest{Title: "Brown", FileName: "brown.pdf", Text: strings.Repeat("é", 50)}, 10)
	assert.Contains(t, user, "Title: Brown")
	assert.True(t, strings.HasSuffix(user, strings.Repeat("é", 10)))
	assert.NotContains(t, user, strings.Repeat("é", 11))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 5))
}

func TestClassifyError(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, ClassifyError(ctx, nil))
	assert.ErrorIs(t, ClassifyError(ctx, errors.New("API returned unexpected status code: 429")), retry.ErrRateLimited)
	assert.ErrorIs(t, ClassifyError(ctx, errors.New("connection reset by peer")), retry.ErrTransient)

	auth := ClassifyError(ctx, errors.New("status 401: invalid api key"))
	assert.False(t, retry.IsRetryable(auth))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retry.IsRetryable(ClassifyError(canceled, errors.New("boom"))))
}
