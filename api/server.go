package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/ingestion"
	"github.com/poiesic/lexsync/storage"
)

const (
	// DefaultMaxUploadBytes bounds a single uploaded document.
	DefaultMaxUploadBytes = 64 << 20

	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
	suggestLimit    = 5
	shutdownTimeout = 10 * time.Second
)

// Ingestor accepts manual uploads.
type Ingestor interface {
	IngestUpload(ctx context.Context, up ingestion.Upload) (*core.DocumentRecord, error)
}

// Reconciler runs reconciliation passes.
type Reconciler interface {
	Run(ctx context.Context) (*core.SyncReport, error)
	DryRun(ctx context.Context) (*core.SyncReport, error)
}

// Server serves the HTTP API.
type Server struct {
	ingestor       Ingestor
	metadata       storage.MetadataStore
	index          storage.SearchIndex
	reconciler     Reconciler
	maxUploadBytes int64
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithReconciler enables POST /sync.
func WithReconciler(r Reconciler) Option {
	return func(s *Server) error {
		s.reconciler = r
		return nil
	}
}

// WithMaxUploadBytes bounds the size of an uploaded document.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("max upload bytes must be positive, got %d", n)
		}
		s.maxUploadBytes = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewServer creates the API server.
func NewServer(ingestor Ingestor, metadata storage.MetadataStore, index storage.SearchIndex, opts ...Option) (*Server, error) {
	if ingestor == nil {
		return nil, ErrIngestorRequired
	}
	if metadata == nil || index == nil {
		return nil, ErrStoreRequired
	}
	s := &Server{
		ingestor:       ingestor,
		metadata:       metadata,
		index:          index,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = s.maxUploadBytes

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/documents", s.upload)
	r.GET("/documents", s.listDocuments)
	r.GET("/documents/:id", s.getDocument)
	r.GET("/search", s.search)
	r.GET("/suggest", s.suggest)
	r.POST("/sync", s.sync)
	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) log(c *gin.Context) *slog.Logger {
	return s.logger.With("request_id", c.GetString(requestIDKey))
}
