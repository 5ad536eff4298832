package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/core"
	lexstorage "github.com/poiesic/lexsync/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Config describes a Cloud Storage bucket.
type Config struct {
	Bucket          string
	CredentialsFile string
	// Endpoint overrides the API endpoint, e.g. for a local emulator.
	Endpoint string
}

type blobStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

var _ lexstorage.BlobStore = (*blobStore)(nil)

// NewBlobStore opens a client for cfg.Bucket. Without a credentials file
// the client falls back to Application Default Credentials.
func NewBlobStore(ctx context.Context, cfg Config, logger *slog.Logger) (lexstorage.BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", config.ErrInvalidConfig)
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create storage client: %w", config.ErrMissingCredential, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &blobStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		logger: logger,
	}, nil
}

func (s *blobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", lexstorage.ErrInvalidQuery
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", s.translate(err)
	}
	if err := w.Close(); err != nil {
		return "", s.translate(err)
	}
	return key, nil
}

func (s *blobStore) Download(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, s.translate(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, s.translate(err)
	}
	return data, nil
}

func (s *blobStore) ReadPrefix(ctx context.Context, key string, n int) ([]byte, error) {
	if n <= 0 {
		return s.Download(ctx, key)
	}
	r, err := s.bucket.Object(key).NewRangeReader(ctx, 0, int64(n))
	if err != nil {
		return nil, s.translate(err)
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, s.translate(err)
	}
	return data, nil
}

func (s *blobStore) List(ctx context.Context, prefix string) ([]core.BlobObject, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []core.BlobObject
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, s.translate(err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, core.BlobObject{
			Key:         attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			UpdatedAt:   attrs.Updated.UTC(),
		})
	}
	slices.SortFunc(out, func(a, b core.BlobObject) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return s.translate(err)
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%w: %w", lexstorage.ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", lexstorage.ErrUnavailable, err)
}

func (s *blobStore) translate(err error) error {
	out := translateErr(err)
	if errors.Is(out, lexstorage.ErrUnavailable) {
		s.logger.Debug("gcs request failed", "bucket", s.name, "error", err)
	}
	return out
}
