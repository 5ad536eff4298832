package ai

import (
	"regexp"
	"sort"
	"strings"

	"github.com/poiesic/lexsync/core"
)

// reporters maps the spacing-insensitive form of a reporter abbreviation to
// its canonical spelling.
var reporters = map[string]string{
	"U.S.":         "U.S.",
	"S.Ct.":        "S. Ct.",
	"L.Ed.":        "L. Ed.",
	"L.Ed.2d":      "L. Ed. 2d",
	"F.":           "F.",
	"F.2d":         "F.2d",
	"F.3d":         "F.3d",
	"F.4th":        "F.4th",
	"F.Supp.":      "F. Supp.",
	"F.Supp.2d":    "F. Supp. 2d",
	"F.Supp.3d":    "F. Supp. 3d",
	"P.":           "P.",
	"P.2d":         "P.2d",
	"P.3d":         "P.3d",
	"A.":           "A.",
	"A.2d":         "A.2d",
	"A.3d":         "A.3d",
	"N.E.":         "N.E.",
	"N.E.2d":       "N.E.2d",
	"N.E.3d":       "N.E.3d",
	"N.W.":         "N.W.",
	"N.W.2d":       "N.W.2d",
	"S.E.":         "S.E.",
	"S.E.2d":       "S.E.2d",
	"S.W.":         "S.W.",
	"S.W.2d":       "S.W.2d",
	"S.W.3d":       "S.W.3d",
	"So.":          "So.",
	"So.2d":        "So. 2d",
	"So.3d":        "So. 3d",
	"Cal.Rptr.":    "Cal. Rptr.",
	"Cal.Rptr.2d":  "Cal. Rptr. 2d",
	"Cal.Rptr.3d":  "Cal. Rptr. 3d",
	"B.R.":         "B.R.",
	"Fed.Cl.":      "Fed. Cl.",
	"Fed.Appx.":    "Fed. Appx.",
	"F.App'x":      "F. App'x",
	"Wash.2d":      "Wash. 2d",
	"N.Y.2d":       "N.Y.2d",
	"N.Y.3d":       "N.Y.3d",
	"Cal.4th":      "Cal. 4th",
	"Cal.5th":      "Cal. 5th",
	"Ill.2d":       "Ill. 2d",
	"Mass.":        "Mass.",
	"U.S.App.D.C.": "U.S. App. D.C.",
}

var citationPattern = buildCitationPattern()

// buildCitationPattern matches "<volume> <reporter> <page>", allowing optional
// whitespace after each period of the reporter abbreviation.
func buildCitationPattern() *regexp.Regexp {
	keys := make([]string, 0, len(reporters))
	for k := range reporters {
		keys = append(keys, k)
	}
	// Longer abbreviations first so "F.Supp.2d" wins over "F.".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	alts := make([]string, len(keys))
	for i, k := range keys {
		alts[i] = strings.ReplaceAll(regexp.QuoteMeta(k), `\.`, `\.\s?`)
	}
	return regexp.MustCompile(`\b(\d{1,4})\s+(` + strings.Join(alts, "|") + `)\s+(\d{1,5})\b`)
}

// ExtractCitations finds reporter citations such as "347 U.S. 483" or
// "123 F. Supp. 2d 456" in text. Results are de-duplicated in order of
// first appearance.
func ExtractCitations(text string) []core.Citation {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []core.Citation
	for _, m := range matches {
		reporter, ok := reporters[strings.Join(strings.Fields(m[2]), "")]
		if !ok {
			continue
		}
		cite := m[1] + " " + reporter + " " + m[3]
		if seen[cite] {
			continue
		}
		seen[cite] = true
		out = append(out, core.Citation{Cite: cite, Reporter: reporter})
	}
	return out
}
