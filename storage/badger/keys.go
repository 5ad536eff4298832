package badger

import (
	"bytes"
)

const (
	schemaKey        = "schema"
	docPrefix        = "doc:"
	postingPrefix    = "post:"
	termListPrefix   = "terms:"
	completionPrefix = "comp:"
	vocabPrefix      = "voc:"

	// keySep separates a term from the trailing document ID. Terms never
	// contain it since the analyzer only emits letters and digits.
	keySep = 0x00
)

// makeDocKey generates the key holding the encoded IndexDocument.
func makeDocKey(id string) []byte {
	return []byte(docPrefix + id)
}

// makeTermListKey generates the key listing every secondary key written for id.
func makeTermListKey(id string) []byte {
	return []byte(termListPrefix + id)
}

// makePostingPrefix generates the prefix of all postings for a field/term.
// Format: post:field:term\x00
func makePostingPrefix(field, term string) []byte {
	buf := make([]byte, 0, len(postingPrefix)+len(field)+len(term)+2)
	buf = append(buf, postingPrefix...)
	buf = append(buf, field...)
	buf = append(buf, ':')
	buf = append(buf, term...)
	return append(buf, keySep)
}

// makePostingKey generates a posting key.
// Format: post:field:term\x00id
func makePostingKey(field, term, id string) []byte {
	return append(makePostingPrefix(field, term), id...)
}

// makeCompletionKey generates a completion key for a lowercased title suffix.
// Format: comp:text\x00id
func makeCompletionKey(text, id string) []byte {
	buf := make([]byte, 0, len(completionPrefix)+len(text)+len(id)+1)
	buf = append(buf, completionPrefix...)
	buf = append(buf, text...)
	buf = append(buf, keySep)
	return append(buf, id...)
}

func makeVocabKey(term string) []byte {
	return []byte(vocabPrefix + term)
}

// idFromKey returns the document ID trailing the last separator.
func idFromKey(key []byte) string {
	i := bytes.LastIndexByte(key, keySep)
	if i < 0 {
		return ""
	}
	return string(key[i+1:])
}
