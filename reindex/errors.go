package reindex

import "errors"

var (
	// ErrIncomplete is returned when some records could not be indexed.
	ErrIncomplete = errors.New("reindex incomplete")
)
