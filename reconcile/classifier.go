package reconcile

import "bytes"

const (
	// DefaultMarker is the sentinel written into legacy placeholder documents.
	DefaultMarker = "[PLACEHOLDER DOCUMENT]"

	// DefaultPrefixBytes is how much of a blob is sniffed for the marker.
	DefaultPrefixBytes = 4096
)

// ContentClassifier decides from the leading bytes of a blob whether it is a
// placeholder artifact.
type ContentClassifier interface {
	// PrefixLen is how many leading bytes IsPlaceholder needs.
	PrefixLen() int
	IsPlaceholder(prefix []byte) bool
}

// MarkerClassifier matches blobs containing Marker within their first
// PrefixBytes bytes.
type MarkerClassifier struct {
	Marker      string
	PrefixBytes int
}

// NewMarkerClassifier returns a classifier for the default marker.
func NewMarkerClassifier() MarkerClassifier {
	return MarkerClassifier{Marker: DefaultMarker, PrefixBytes: DefaultPrefixBytes}
}

func (c MarkerClassifier) PrefixLen() int {
	if c.PrefixBytes <= 0 {
		return DefaultPrefixBytes
	}
	return c.PrefixBytes
}

func (c MarkerClassifier) IsPlaceholder(prefix []byte) bool {
	if c.Marker == "" {
		return false
	}
	if len(prefix) > c.PrefixLen() {
		prefix = prefix[:c.PrefixLen()]
	}
	return bytes.Contains(prefix, []byte(c.Marker))
}
