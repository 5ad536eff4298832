package core

import (
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// BlobKeyPrefix is the folder all ingested documents are written under.
const BlobKeyPrefix = "documents/"

// documentNamespace scopes the name-based UUIDs used as record ids.
var documentNamespace = uuid.MustParse("6f1c3f0e-9a4e-5b7a-8d1e-2c4b7f9a0d31")

// DocumentID derives the record id from the blob key. The same key always
// yields the same id, so repeated repairs upsert instead of duplicating.
func DocumentID(filePath string) string {
	return uuid.NewSHA1(documentNamespace, []byte(filePath)).String()
}

// ContentHash returns a hex BLAKE2b-256 digest of the content.
func ContentHash(content []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeFileName produces the natural dedup key for a file name:
// lowercased, separator runs collapsed to a single "_", everything outside
// [a-z0-9._] dropped.
func NormalizeFileName(name string) string {
	name = strings.ToLower(strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	var b strings.Builder
	lastSep := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastSep = false
		case unicode.IsSpace(r) || r == '_' || r == '-':
			if !lastSep && b.Len() > 0 {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// BlobKey builds a collision-resistant key for a new upload.
func BlobKey(fileName string, at time.Time) string {
	safe := NormalizeFileName(fileName)
	if safe == "" {
		safe = "document"
	}
	return fmt.Sprintf("%s%d_%s", BlobKeyPrefix, at.UnixMilli(), safe)
}

// FileNameFromKey strips the folder and timestamp qualifier from a blob key.
func FileNameFromKey(key string) string {
	base := path.Base(key)
	if i := strings.IndexByte(base, '_'); i > 0 {
		if _, err := strconv.ParseInt(base[:i], 10, 64); err == nil {
			return base[i+1:]
		}
	}
	return base
}

// FileTypeOf classifies a file by extension, falling back to its content type.
func FileTypeOf(fileName, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	switch ext {
	case "pdf", "doc", "docx", "txt", "rtf", "html", "htm", "png", "jpg", "jpeg", "tif", "tiff":
		if ext == "htm" {
			return "html"
		}
		if ext == "jpeg" {
			return "jpg"
		}
		if ext == "tif" {
			return "tiff"
		}
		return ext
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "html"):
		return "html"
	case strings.HasPrefix(ct, "text/"):
		return "txt"
	case strings.HasPrefix(ct, "image/"):
		return strings.TrimPrefix(ct, "image/")
	}
	return "unknown"
}

// ContentTypeOf returns the MIME type stored alongside a blob of the given file type.
func ContentTypeOf(fileType string) string {
	switch fileType {
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "txt":
		return "text/plain"
	case "rtf":
		return "application/rtf"
	case "html":
		return "text/html"
	case "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	case "tiff":
		return "image/tiff"
	}
	return "application/octet-stream"
}

// TitleFromFileName turns "brown_v_board.pdf" into "Brown V Board".
func TitleFromFileName(fileName string) string {
	base := strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
