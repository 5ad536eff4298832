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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/lexsync/core"
)

// MarshalInt serializes an int to bytes.
func MarshalInt(v int) []byte {
	buf := make([]byte, varint.Int.Size(v))
	varint.Int.Marshal(v, buf)
	return buf
}

// UnmarshalInt deserializes an int from bytes.
func UnmarshalInt(data []byte) (int, error) {
	v, _, err := varint.Int.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return v, nil
}

// MarshalStrings serializes a string slice to bytes.
func MarshalStrings(values []string) []byte {
	w := newWriter(sizeStrings(values))
	w.strings(values)
	return w.bs
}

// UnmarshalStrings deserializes a string slice from bytes.
func UnmarshalStrings(data []byte) ([]string, error) {
	r := &reader{bs: data}
	values := r.strings()
	if r.err != nil {
		return nil, r.err
	}
	return values, nil
}

// MarshalIndexDocument serializes an IndexDocument to bytes.
func MarshalIndexDocument(doc *core.IndexDocument) []byte {
	w := newWriter(sizeIndexDocument(doc))
	w.str(doc.ID)
	w.str(doc.Title)
	w.str(doc.FileName)
	w.str(doc.FileType)
	w.str(doc.Court)
	w.time(doc.DateFiled)
	w.str(doc.Content)
	w.str(doc.Summary)
	w.int(len(doc.Chunks))
	for _, c := range doc.Chunks {
		w.int(c.Ordinal)
		w.str(c.Text)
	}
	w.int(len(doc.Entities))
	for _, e := range doc.Entities {
		w.str(e.Name)
		w.str(e.Type)
	}
	w.int(len(doc.Citations))
	for _, c := range doc.Citations {
		w.str(c.Cite)
		w.str(c.Reporter)
	}
	w.strings(doc.Concepts)
	w.time(doc.UpdatedAt)
	return w.bs
}

// UnmarshalIndexDocument deserializes an IndexDocument from bytes.
func UnmarshalIndexDocument(data []byte) (*core.IndexDocument, error) {
	r := &reader{bs: data}
	doc := &core.IndexDocument{
		ID:        r.str(),
		Title:     r.str(),
		FileName:  r.str(),
		FileType:  r.str(),
		Court:     r.str(),
		DateFiled: r.time(),
		Content:   r.str(),
		Summary:   r.str(),
	}
	if n := r.count(); n > 0 {
		doc.Chunks = make([]core.Chunk, n)
		for i := range doc.Chunks {
			doc.Chunks[i] = core.Chunk{Ordinal: r.int(), Text: r.str()}
		}
	}
	if n := r.count(); n > 0 {
		doc.Entities = make([]core.Entity, n)
		for i := range doc.Entities {
			doc.Entities[i] = core.Entity{Name: r.str(), Type: r.str()}
		}
	}
	if n := r.count(); n > 0 {
		doc.Citations = make([]core.Citation, n)
		for i := range doc.Citations {
			doc.Citations[i] = core.Citation{Cite: r.str(), Reporter: r.str()}
		}
	}
	doc.Concepts = r.strings()
	doc.UpdatedAt = r.time()
	if r.err != nil {
		return nil, r.err
	}
	return doc, nil
}

func sizeIndexDocument(doc *core.IndexDocument) int {
	size := ord.String.Size(doc.ID) +
		ord.String.Size(doc.Title) +
		ord.String.Size(doc.FileName) +
		ord.String.Size(doc.FileType) +
		ord.String.Size(doc.Court) +
		sizeTime(doc.DateFiled) +
		ord.String.Size(doc.Content) +
		ord.String.Size(doc.Summary)
	size += varint.Int.Size(len(doc.Chunks))
	for _, c := range doc.Chunks {
		size += varint.Int.Size(c.Ordinal) + ord.String.Size(c.Text)
	}
	size += varint.Int.Size(len(doc.Entities))
	for _, e := range doc.Entities {
		size += ord.String.Size(e.Name) + ord.String.Size(e.Type)
	}
	size += varint.Int.Size(len(doc.Citations))
	for _, c := range doc.Citations {
		size += ord.String.Size(c.Cite) + ord.String.Size(c.Reporter)
	}
	size += sizeStrings(doc.Concepts)
	size += sizeTime(doc.UpdatedAt)
	return size
}

func sizeStrings(values []string) int {
	size := varint.Int.Size(len(values))
	for _, v := range values {
		size += ord.String.Size(v)
	}
	return size
}

// Times are stored as Unix microseconds; 0 encodes the zero time.
func timeMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(timeMicros(t))
}

type writer struct {
	bs []byte
	n  int
}

func newWriter(size int) *writer {
	return &writer{bs: make([]byte, size)}
}

func (w *writer) str(v string) {
	w.n += ord.String.Marshal(v, w.bs[w.n:])
}

func (w *writer) int(v int) {
	w.n += varint.Int.Marshal(v, w.bs[w.n:])
}

func (w *writer) time(t time.Time) {
	w.n += varint.Int64.Marshal(timeMicros(t), w.bs[w.n:])
}

func (w *writer) strings(values []string) {
	w.int(len(values))
	for _, v := range values {
		w.str(v)
	}
}

// reader decodes sequential fields and keeps the first error.
type reader struct {
	bs  []byte
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs)
	if err != nil {
		r.fail(err)
		return ""
	}
	r.bs = r.bs[n:]
	return v
}

func (r *reader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs)
	if err != nil {
		r.fail(err)
		return 0
	}
	r.bs = r.bs[n:]
	return v
}

// count reads a slice length and rejects values the remaining input cannot hold.
func (r *reader) count() int {
	n := r.int()
	if r.err == nil && (n < 0 || n > len(r.bs)) {
		r.fail(ErrTruncatedData)
		return 0
	}
	return n
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := varint.Int64.Unmarshal(r.bs)
	if err != nil {
		r.fail(err)
		return time.Time{}
	}
	r.bs = r.bs[n:]
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func (r *reader) strings() []string {
	n := r.count()
	if n == 0 {
		return nil
	}
	values := make([]string, n)
	for i := range values {
		values[i] = r.str()
	}
	return values
}
