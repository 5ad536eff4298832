package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

type metadataStore struct {
	mu      sync.RWMutex
	records map[string]*core.DocumentRecord
	byPath  map[string]string
	closed  bool
}

var _ storage.MetadataStore = (*metadataStore)(nil)

// NewMetadataStore returns an empty in-process MetadataStore.
func NewMetadataStore() storage.MetadataStore {
	return &metadataStore{
		records: make(map[string]*core.DocumentRecord),
		byPath:  make(map[string]string),
	}
}

func (s *metadataStore) Create(ctx context.Context, record *core.DocumentRecord) error {
	if err := core.ValidateDocumentRecord(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("%w: id %s", storage.ErrDuplicateKey, record.ID)
	}
	if _, ok := s.byPath[record.FilePath]; ok {
		return fmt.Errorf("%w: file_path %s", storage.ErrDuplicateKey, record.FilePath)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	s.records[record.ID] = clone(record)
	s.byPath[record.FilePath] = record.ID
	return nil
}

func (s *metadataStore) Get(ctx context.Context, id string) (*core.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(rec), nil
}

func (s *metadataStore) GetByPath(ctx context.Context, filePath string) (*core.DocumentRecord, error) {
	s.mu.RLock()
	id, ok := s.byPath[filePath]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *metadataStore) FindByNormalizedName(ctx context.Context, normalized string) (*core.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var found *core.DocumentRecord
	for _, rec := range s.records {
		if rec.NormalizedName != normalized {
			continue
		}
		if found == nil || compareRecords(rec, found) < 0 {
			found = rec
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return clone(found), nil
}

func (s *metadataStore) Update(ctx context.Context, record *core.DocumentRecord) error {
	if err := core.ValidateDocumentRecord(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	existing, ok := s.records[record.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if err := core.ValidateTransition(existing.Status, record.Status); err != nil {
		return err
	}
	if existing.FilePath != record.FilePath {
		if _, taken := s.byPath[record.FilePath]; taken {
			return fmt.Errorf("%w: file_path %s", storage.ErrDuplicateKey, record.FilePath)
		}
		delete(s.byPath, existing.FilePath)
		s.byPath[record.FilePath] = record.ID
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = clone(record)
	return nil
}

func (s *metadataStore) UpdateStatus(ctx context.Context, id string, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	if err := core.ValidateTransition(rec.Status, status); err != nil {
		return err
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *metadataStore) List(ctx context.Context, offset, limit int) ([]*core.DocumentRecord, error) {
	if offset < 0 || limit < 0 {
		return nil, storage.ErrInvalidQuery
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	all := s.sorted(func(*core.DocumentRecord) bool { return true })
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 {
		end = min(offset+limit, len(all))
	}
	return all[offset:end], nil
}

func (s *metadataStore) ListByStatus(ctx context.Context, status core.Status) ([]*core.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.sorted(func(r *core.DocumentRecord) bool { return r.Status == status }), nil
}

func (s *metadataStore) Paths(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return maps.Clone(s.byPath), nil
}

func (s *metadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// check must be called with the lock held.
func (s *metadataStore) check(ctx context.Context) error {
	if s.closed {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}

func (s *metadataStore) sorted(keep func(*core.DocumentRecord) bool) []*core.DocumentRecord {
	var out []*core.DocumentRecord
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, clone(rec))
		}
	}
	slices.SortFunc(out, compareRecords)
	return out
}

func compareRecords(a, b *core.DocumentRecord) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func clone(rec *core.DocumentRecord) *core.DocumentRecord {
	out := *rec
	if rec.ExtractedText != nil {
		text := *rec.ExtractedText
		out.ExtractedText = &text
	}
	if rec.Summary != nil {
		summary := *rec.Summary
		out.Summary = &summary
	}
	out.Metadata = maps.Clone(rec.Metadata)
	return &out
}
