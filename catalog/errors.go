package catalog

import "errors"

var (
	// ErrUnavailable means the artifact could not be downloaded. The caller
	// skips the item.
	ErrUnavailable = errors.New("artifact unavailable")

	// ErrNoArtifact means the item has no usable download URL.
	ErrNoArtifact = errors.New("no usable artifact")

	// ErrBadResponse means the catalog returned a payload that failed validation.
	ErrBadResponse = errors.New("malformed catalog response")
)
