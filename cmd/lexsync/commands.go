package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexsync"
	"github.com/poiesic/lexsync/api"
	"github.com/poiesic/lexsync/core"
	"github.com/poiesic/lexsync/ingestion"
	"github.com/poiesic/lexsync/reindex"
	"github.com/poiesic/lexsync/storage"
	"github.com/poiesic/lexsync/watch"
)

const reindexDefaultRetryDelay = time.Second

// session bundles the per-command state every action needs.
type session struct {
	*lexsync.System
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *session) Close() {
	s.cancel()
	if err := s.System.Close(); err != nil {
		slog.Warn("failed to close stores", "error", err)
	}
}

// openSession loads the configuration and opens the stores. The context is
// canceled on SIGINT or SIGTERM.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadedConfig(c)
	if err != nil {
		return nil, err
	}
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	sys, err := lexsync.Open(ctx, cfg, slog.Default())
	if err != nil {
		cancel()
		return nil, err
	}
	return &session{System: sys, ctx: ctx, cancel: cancel}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCommand(c *cli.Context) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCatalog(); err != nil {
		return err
	}
	cat, err := lexsync.NewCatalog(cfg.Catalog, slog.Default().With("component", "catalog"))
	if err != nil {
		return fmt.Errorf("failed to create catalog connector: %w", err)
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, cat)
	if err != nil {
		return err
	}
	defer release()

	filters := core.SearchFilters{
		Query:      c.String("query"),
		Court:      c.String("court"),
		PageSize:   cfg.Catalog.PageSize,
		MaxResults: cfg.Ingestion.MaxResults,
	}
	if n := c.Int("max-results"); n > 0 {
		filters.MaxResults = n
	}
	if t := c.Timestamp("filed-after"); t != nil {
		filters.FiledAfter = *t
	}
	if t := c.Timestamp("filed-before"); t != nil {
		filters.FiledBefore = *t
	}

	fmt.Fprintf(os.Stderr, "Catalog: %s\n", cfg.Catalog.BaseURL)
	fmt.Fprintf(os.Stderr, "Query: %s\n", filters.Query)
	fmt.Fprintln(os.Stderr)

	stats, err := p.Run(s.ctx, filters)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return writeJSON(c.App.Writer, stats)
}

func uploadCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	var failed int
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		rec, err := p.IngestUpload(s.ctx, ingestion.Upload{
			FileName: filepath.Base(path),
			Data:     data,
			Title:    c.String("title"),
			OwnerID:  c.String("owner"),
		})
		switch {
		case errors.Is(err, ingestion.ErrDuplicate):
			fmt.Fprintf(os.Stderr, "%s: already ingested\n", path)
		case err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		default:
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", rec.ID, rec.Status, rec.FilePath)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, c.NArg())
	}
	return nil
}

func syncCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	engine, err := s.NewEngine(p)
	if err != nil {
		return err
	}

	var report *core.SyncReport
	if c.Bool("dry-run") {
		report, err = engine.DryRun(s.ctx)
	} else {
		report, err = engine.Run(s.ctx)
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	return writeJSON(c.App.Writer, report)
}

func analyzeCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	engine, err := s.NewEngine(p)
	if err != nil {
		return err
	}
	analysis, err := engine.Analyze(s.ctx)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return writeJSON(c.App.Writer, analysis)
}

func reindexCommand(c *cli.Context) error {
	reindexConfig := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Prune:          c.Bool("prune"),
	}
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	r := reindex.NewReindexer(s.Metadata(), s.Index(), reindexConfig, slog.Default().With("component", "reindex"))
	result, err := r.Run(s.ctx)
	if result != nil {
		if werr := writeJSON(c.App.Writer, result); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func retryFailedCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	stats, err := p.RetryFailed(s.ctx)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	return writeJSON(c.App.Writer, stats)
}

func searchCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("a query is required")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.Index().Search(s.ctx, storage.Query{
		Text:      text,
		FileTypes: c.StringSlice("file-type"),
		Court:     c.String("court"),
		Size:      c.Int("size"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "%d hits\n", res.Total)
	for _, hit := range res.Hits {
		fmt.Fprintf(c.App.Writer, "%.3f\t%s\t%s\t%s\n", hit.Score, hit.ID, hit.FileType, hit.Title)
		for _, h := range hit.Highlights {
			fmt.Fprintf(c.App.Writer, "\t%s\n", h)
		}
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	engine, err := s.NewEngine(p)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(p, s.Metadata(), s.Index(),
		api.WithReconciler(engine),
		api.WithMaxUploadBytes(s.Config().Server.MaxUploadBytes),
		api.WithLogger(slog.Default().With("component", "api")),
	)
	if err != nil {
		return err
	}

	addr := s.Config().Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	return srv.ListenAndServe(s.ctx, addr)
}

func watchCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	p, release, err := s.NewPipeline(s.ctx, nil)
	if err != nil {
		return err
	}
	defer release()

	dir := s.Config().Watch.Dir
	if c.IsSet("dir") {
		dir = c.String("dir")
	}
	w, err := watch.New(dir, p,
		watch.WithSettleDelay(s.Config().Watch.SettleDelay),
		watch.WithLogger(slog.Default().With("component", "watch")),
	)
	if err != nil {
		return err
	}
	if err := w.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
