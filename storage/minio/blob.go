package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/storage"
)

// Config describes an S3-compatible bucket.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	CreateBucket bool
}

type blobStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

var _ storage.BlobStore = (*blobStore)(nil)

// NewBlobStore connects to the bucket described by cfg. The bucket is created
// when missing and cfg.CreateBucket is set.
func NewBlobStore(ctx context.Context, cfg Config, logger *slog.Logger) (storage.BlobStore, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: blob store access key and secret", config.ErrMissingCredential)
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: blob endpoint and bucket are required", config.ErrInvalidConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	s := newBlobStore(client, cfg.Bucket, logger)

	if cfg.CreateBucket {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, s.translate(err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
				return nil, s.translate(err)
			}
			s.logger.Info("created bucket", "bucket", cfg.Bucket)
		}
	}
	return s, nil
}

func newBlobStore(client *minio.Client, bucket string, logger *slog.Logger) *blobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &blobStore{client: client, bucket: bucket, logger: logger}
}

func (s *blobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidQuery
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", s.translate(err)
	}
	return key, nil
}

func (s *blobStore) Download(ctx context.Context, key string) ([]byte, error) {
	return s.read(ctx, key, minio.GetObjectOptions{})
}

func (s *blobStore) ReadPrefix(ctx context.Context, key string, n int) ([]byte, error) {
	if n <= 0 {
		return s.Download(ctx, key)
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(0, int64(n-1)); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, key, opts)
	if errors.Is(err, storage.ErrInvalidQuery) {
		// Zero-length objects cannot satisfy any range.
		return []byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > n {
		data = data[:n]
	}
	return data, nil
}

func (s *blobStore) read(ctx context.Context, key string, opts minio.GetObjectOptions) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, s.translate(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.translate(err)
	}
	return data, nil
}

func (s *blobStore) List(ctx context.Context, prefix string) ([]core.BlobObject, error) {
	var out []core.BlobObject
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, s.translate(info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		out = append(out, core.BlobObject{
			Key:         info.Key,
			Size:        info.Size,
			ContentType: info.ContentType,
			UpdatedAt:   info.LastModified.UTC(),
		})
	}
	slices.SortFunc(out, func(a, b core.BlobObject) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *blobStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	if err = s.translate(err); errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// translate maps S3 error responses onto storage errors. The original
// error stays wrapped so callers can still inspect the response.
func (s *blobStore) translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"):
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	case resp.Code == "InvalidRange":
		return fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	s.logger.Debug("blob store request failed", "bucket", s.bucket, "code", resp.Code, "error", err)
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}
