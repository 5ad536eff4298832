package minio

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/poiesic/lexsync/config"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 implements the handful of path-style S3 calls the blob store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodGet:
		f.list(w, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		f.get(w, r, key)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) get(w http.ResponseWriter, r *http.Request, key string) {
	data, ok := f.objects[key]
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	status := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" {
		if len(data) == 0 {
			writeS3Error(w, http.StatusRequestedRangeNotSatisfiable, "InvalidRange")
			return
		}
		var start, end int
		fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
		end = min(end, len(data)-1)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		data = data[start : end+1]
		status = http.StatusPartialContent
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Type", f.types[key])
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(status)
	if r.Method == http.MethodGet {
		w.Write(data)
	}
}

type listContents struct {
	Key          string
	LastModified string
	ETag         string
	Size         int
	StorageClass string
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string
	Prefix      string
	KeyCount    int
	MaxKeys     int
	IsTruncated bool
	Contents    []listContents
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	res := listResult{Name: "docs", Prefix: prefix, MaxKeys: 1000}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		res.Contents = append(res.Contents, listContents{
			Key:          k,
			LastModified: time.Now().UTC().Format(time.RFC3339),
			ETag:         `"etag"`,
			Size:         len(f.objects[k]),
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents)
	w.Header().Set("Content-Type", "application/xml")
	xml.NewEncoder(w).Encode(res)
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func newTestStore(t *testing.T) storage.BlobStore {
	t.Helper()
	srv := httptest.NewServer(newFakeS3())
	t.Cleanup(srv.Close)

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("", "", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return newBlobStore(client, "docs", nil)
}

func TestBlobStore(t *testing.T) {
	storagetest.RunBlobStoreTests(t, newTestStore)
}

func TestBlobStore_ReadPrefixEmptyObject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upload(ctx, "documents/empty.txt", []byte{}, "text/plain")
	require.NoError(t, err)

	data, err := s.ReadPrefix(ctx, "documents/empty.txt", 16)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestNewBlobStore_MissingCredentials(t *testing.T) {
	_, err := NewBlobStore(context.Background(), Config{Endpoint: "localhost:9000", Bucket: "docs"}, nil)
	assert.ErrorIs(t, err, config.ErrMissingCredential)

	_, err = NewBlobStore(context.Background(), Config{AccessKey: "a", SecretKey: "b"}, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTranslate(t *testing.T) {
	s := newBlobStore(nil, "docs", nil)

	err := s.translate(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.translate(minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	err = s.translate(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	assert.ErrorIs(t, s.translate(context.Canceled), context.Canceled)
}
