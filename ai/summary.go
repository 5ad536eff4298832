package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/lexsync/core"
)

// ErrEmptySummary is returned when a model answers without a summary.
var ErrEmptySummary = errors.New("model returned an empty summary")

// MaxParseAttempts is how many model answers a provider tries to parse
// before giving up on a document.
const MaxParseAttempts = 3

const summarySchema = `{
  "type": "object",
  "properties": {
    "summary":   {"type": "string"},
    "entities":  {"type": "array", "items": {"type": "object",
                  "properties": {"name": {"type": "string"}, "type": {"type": "string"}},
                  "required": ["name", "type"]}},
    "citations": {"type": "array", "items": {"type": "string"}},
    "concepts":  {"type": "array", "items": {"type": "string"}}
  },
  "required": ["summary", "entities", "citations", "concepts"]
}`

const systemPromptTemplate = `You summarize court opinions, briefs and other legal documents for a search index.

Output ONLY valid JSON which complies with the schema below. Start your response with { and end it with }.

%s

Rules:
- summary: 3-6 plain sentences covering the parties, the question presented, the holding and the disposition.
- entities: parties, judges, courts, attorneys, statutes and agencies named in the document.
  Type must be exactly one of: %s.
- citations: case citations exactly as they appear, e.g. "347 U.S. 483".
- concepts: up to 8 legal concepts, lowercase, 1-4 words, e.g. "equal protection".
- Use only what the document states. Do not invent citations or parties.
- If a field has no values, return an empty array.`

// SystemPrompt is the instruction shared by every model-backed Summarizer.
func SystemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, summarySchema, strings.Join(EntityTypes, ", "))
}

// UserPrompt renders the document part of the prompt, truncated to maxChars.
func UserPrompt(req SummaryRequest, maxChars int) string {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}
	if req.FileName != "" {
		fmt.Fprintf(&b, "File: %s\n", req.FileName)
	}
	b.WriteString("\n")
	b.WriteString(Truncate(req.Text, maxChars))
	return b.String()
}

// Truncate cuts s to at most maxChars runes. Non-positive maxChars disables it.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	r := []rune(s)
	return string(r[:maxChars])
}

type summaryPayload struct {
	Summary  string `json:"summary"`
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
	Citations []json.RawMessage `json:"citations"`
	Concepts  []string          `json:"concepts"`
}

// ParseSummary decodes a model answer into a Summary.
func ParseSummary(raw string) (*Summary, error) {
	var p summaryPayload
	if err := json.Unmarshal([]byte(CleanModelJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("parse summary: %w", err)
	}
	text := strings.TrimSpace(p.Summary)
	if text == "" {
		return nil, ErrEmptySummary
	}

	s := &Summary{Text: text}
	seen := map[string]bool{}
	for _, e := range p.Entities {
		name := strings.TrimSpace(e.Name)
		typ := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(e.Type)), " ", "_")
		if name == "" || seen[typ+"\x00"+name] {
			continue
		}
		seen[typ+"\x00"+name] = true
		s.Entities = append(s.Entities, core.Entity{Name: name, Type: typ})
	}
	for _, c := range p.Citations {
		if cite := citationString(c); cite != "" {
			s.Citations = append(s.Citations, core.Citation{Cite: cite})
		}
	}
	for _, c := range p.Concepts {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" && !seen["concept\x00"+c] {
			seen["concept\x00"+c] = true
			s.Concepts = append(s.Concepts, c)
		}
	}
	return s, nil
}

// citationString accepts "347 U.S. 483" or {"cite": "347 U.S. 483"}.
func citationString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj core.Citation
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Cite)
	}
	return ""
}

// Finalize fills gaps in a model summary from the source text: citations the
// model missed are added by ExtractCitations, and reporters are filled in.
func Finalize(s *Summary, text string) *Summary {
	found := ExtractCitations(text)
	seen := make(map[string]bool, len(s.Citations))
	cites := s.Citations[:0]
	for _, c := range s.Citations {
		if normalized := ExtractCitations(c.Cite); len(normalized) == 1 {
			c = normalized[0]
		}
		if seen[c.Cite] {
			continue
		}
		seen[c.Cite] = true
		cites = append(cites, c)
	}
	for _, c := range found {
		if !seen[c.Cite] {
			seen[c.Cite] = true
			cites = append(cites, c)
		}
	}
	s.Citations = cites
	return s
}
