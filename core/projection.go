package core

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// ChunkSize is the target number of runes per projected chunk.
const ChunkSize = 1000

// Project derives the search projection of a record. It reads only the
// record itself, so the index can be rebuilt from the metadata store alone.
func Project(rec *DocumentRecord) IndexDocument {
	doc := IndexDocument{
		ID:        rec.ID,
		Title:     rec.Title,
		FileName:  rec.FileName,
		FileType:  rec.FileType,
		UpdatedAt: rec.UpdatedAt,
	}
	if doc.Title == "" {
		doc.Title = TitleFromFileName(rec.FileName)
	}
	if rec.ExtractedText != nil {
		doc.Content = *rec.ExtractedText
	}
	if rec.Summary != nil {
		doc.Summary = *rec.Summary
	}
	doc.Chunks = ChunkText(doc.Content, ChunkSize)

	if rec.Metadata != nil {
		doc.Court, _ = rec.Metadata[MetaCourt].(string)
		doc.DateFiled = MetadataTime(rec.Metadata, MetaDateFiled)
		DecodeMetadata(rec.Metadata, MetaEntities, &doc.Entities)
		DecodeMetadata(rec.Metadata, MetaCitations, &doc.Citations)
		DecodeMetadata(rec.Metadata, MetaConcepts, &doc.Concepts)
	}
	return doc
}

// DecodeMetadata converts a metadata value into out. Values arrive either as
// typed Go values or as generic JSON shapes after a database round trip, so
// both are normalized through JSON. It reports whether out was populated.
func DecodeMetadata(meta map[string]any, key string, out any) bool {
	v, ok := meta[key]
	if !ok || v == nil {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// MetadataTime reads a timestamp stored as time.Time or as an RFC 3339 / date string.
func MetadataTime(meta map[string]any, key string) time.Time {
	switch v := meta[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// ChunkText splits text into chunks of at most size runes, breaking on
// whitespace where possible.
func ChunkText(text string, size int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); {
		end := min(start+size, len(runes))
		if end < len(runes) {
			cut := end
			for cut > start && !unicode.IsSpace(runes[cut]) {
				cut--
			}
			if cut > start {
				end = cut
			}
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			chunks = append(chunks, Chunk{Ordinal: len(chunks), Text: part})
		}
		start = end
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return chunks
}
