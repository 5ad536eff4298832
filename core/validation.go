// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
)

// ValidateDocumentRecord validates a DocumentRecord according to domain rules.
//
// Validation rules:
//   - ID, FileName and FilePath must not be empty
//   - Status must be one of processing, indexed, failed
//   - PIIStatus must be valid when set
//
// NOT validated (populated by later stages):
//   - ExtractedText and Summary (nil until extraction/summarization ran)
//   - Metadata (opaque)
func ValidateDocumentRecord(record *DocumentRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidDocument)
	}
	if record.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDocument)
	}
	if record.FileName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFileName)
	}
	if record.FilePath == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilePath)
	}
	if !record.Status.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidDocument, ErrInvalidStatus, record.Status)
	}
	if record.PIIStatus != "" && !record.PIIStatus.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidDocument, ErrInvalidPIIStatus, record.PIIStatus)
	}
	return nil
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusIndexed, StatusFailed:
		return true
	}
	return false
}

// Valid reports whether p is a known PII status.
func (p PIIStatus) Valid() bool {
	switch p {
	case PIIUnchecked, PIIClean, PIIFlagged:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from one status to another.
// Indexed and failed are never entered from each other directly; a failed
// record re-enters processing before it can be indexed again.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	switch from {
	case StatusProcessing:
		return to == StatusIndexed || to == StatusFailed
	case StatusFailed:
		return to == StatusProcessing
	}
	return false
}

// ValidateTransition is CanTransition returning a wrapped ErrInvalidTransition.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
