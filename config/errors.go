package config

import "errors"

var (
	// ErrMissingCredential is returned when a required credential is empty.
	// The wrapped message names the missing key.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidConfig is returned for malformed or inconsistent settings.
	ErrInvalidConfig = errors.New("invalid configuration")
)
