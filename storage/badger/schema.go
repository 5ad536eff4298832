package badger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/lexsync/storage"
)

// Indexed fields and their ranking boosts.
const (
	fieldTitle     = "title"
	fieldSummary   = "summary"
	fieldContent   = "content"
	fieldEntities  = "entities"
	fieldCitations = "citations"
	fieldConcepts  = "concepts"
)

var defaultBoosts = map[string]float64{
	fieldTitle:     3,
	fieldCitations: 3,
	fieldEntities:  2,
	fieldConcepts:  2,
	fieldSummary:   1.5,
	fieldContent:   1,
}

// schema is persisted under schemaKey the first time the index is used, so a
// reopened index keeps analyzing text the way it did when it was written.
type schema struct {
	Version   int
	Stopwords []string
	Synonyms  [][]string
	Boosts    map[string]float64
}

func (s *schema) marshal() []byte {
	entries := []string{"version=" + strconv.Itoa(s.Version)}
	for _, w := range s.Stopwords {
		entries = append(entries, "stop="+w)
	}
	for _, group := range s.Synonyms {
		entries = append(entries, "syn="+strings.Join(group, ","))
	}
	for _, field := range fields() {
		if b, ok := s.Boosts[field]; ok {
			entries = append(entries, "boost="+field+":"+strconv.FormatFloat(b, 'f', -1, 64))
		}
	}
	return storage.MarshalStrings(entries)
}

func unmarshalSchema(data []byte) (*schema, error) {
	entries, err := storage.UnmarshalStrings(data)
	if err != nil {
		return nil, err
	}
	s := &schema{Boosts: make(map[string]float64)}
	for _, entry := range entries {
		kind, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: schema entry %q", storage.ErrSerializationFailed, entry)
		}
		switch kind {
		case "version":
			if s.Version, err = strconv.Atoi(value); err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
		case "stop":
			s.Stopwords = append(s.Stopwords, value)
		case "syn":
			s.Synonyms = append(s.Synonyms, strings.Split(value, ","))
		case "boost":
			field, raw, _ := strings.Cut(value, ":")
			b, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
			}
			s.Boosts[field] = b
		}
	}
	return s, nil
}

func fields() []string {
	return []string{fieldTitle, fieldSummary, fieldContent, fieldEntities, fieldCitations, fieldConcepts}
}
