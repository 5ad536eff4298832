package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

type blobEntry struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

type blobStore struct {
	mu      sync.RWMutex
	objects map[string]blobEntry
}

var _ storage.BlobStore = (*blobStore)(nil)

// NewBlobStore returns an empty in-process BlobStore.
func NewBlobStore() storage.BlobStore {
	return &blobStore{objects: make(map[string]blobEntry)}
}

func (s *blobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", storage.ErrInvalidQuery
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = blobEntry{
		data:        slices.Clone(data),
		contentType: contentType,
		updatedAt:   time.Now().UTC(),
	}
	return key, nil
}

func (s *blobStore) Download(ctx context.Context, key string) ([]byte, error) {
	return s.ReadPrefix(ctx, key, -1)
}

func (s *blobStore) ReadPrefix(ctx context.Context, key string, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	data := entry.data
	if n >= 0 && n < len(data) {
		data = data[:n]
	}
	return slices.Clone(data), nil
}

func (s *blobStore) List(ctx context.Context, prefix string) ([]core.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.BlobObject
	for key, entry := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, core.BlobObject{
			Key:         key,
			Size:        int64(len(entry.data)),
			ContentType: entry.contentType,
			UpdatedAt:   entry.updatedAt,
		})
	}
	slices.SortFunc(out, func(a, b core.BlobObject) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}
