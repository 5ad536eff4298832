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

package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexsync/config"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lexsync",
		Usage: "Legal document ingestion and store reconciliation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML, TOML or JSON configuration file",
				EnvVars: []string{config.EnvName("config")},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides log.level",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Search the case-law catalog and ingest the matching documents",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Catalog search query",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "court",
						Usage: "Restrict results to a court identifier",
					},
					&cli.TimestampFlag{
						Name:   "filed-after",
						Usage:  "Only documents filed on or after this date (YYYY-MM-DD)",
						Layout: "2006-01-02",
					},
					&cli.TimestampFlag{
						Name:   "filed-before",
						Usage:  "Only documents filed on or before this date (YYYY-MM-DD)",
						Layout: "2006-01-02",
					},
					&cli.IntFlag{
						Name:  "max-results",
						Usage: "Maximum number of catalog results (0 uses ingestion.max_results)",
					},
				},
			},
			{
				Name:      "upload",
				Usage:     "Ingest local files",
				ArgsUsage: "FILE...",
				Action:    uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Title to use instead of the one derived from the file name",
					},
					&cli.StringFlag{
						Name:  "owner",
						Usage: "Owner recorded on the uploaded documents",
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Reconcile the blob store, metadata store and search index",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report drift without repairing it",
					},
				},
			},
			{
				Name:   "analyze",
				Usage:  "Report how the blob store splits into canonical, legacy text and placeholder files",
				Action: analyzeCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search index from the metadata store",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: reindexDefaultRetryDelay,
					},
					&cli.BoolFlag{
						Name:  "prune",
						Usage: "Remove index entries that have no metadata record",
					},
				},
			},
			{
				Name:   "retry-failed",
				Usage:  "Re-run ingestion for documents in the failed state",
				Action: retryFailedCommand,
			},
			{
				Name:      "search",
				Usage:     "Query the search index",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "file-type",
						Usage: "Restrict results to file types (pdf, docx, html, txt)",
					},
					&cli.StringFlag{
						Name:  "court",
						Usage: "Restrict results to a court",
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "Maximum number of hits",
						Value: 10,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to server.addr)",
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Ingest files dropped into a directory",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory to watch (defaults to watch.dir)",
					},
				},
			},
		},
	}
}

// setupLogger loads the configuration and installs the default slog logger.
// The log-level flag takes precedence over log.level.
func setupLogger(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg

	levelStr := cfg.Log.Level
	if c.IsSet("log-level") {
		levelStr = c.String("log-level")
	}
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", cfg.Log.Format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

var errNoConfig = errors.New("configuration not loaded")

// loadedConfig returns the validated configuration stored by setupLogger.
func loadedConfig(c *cli.Context) (*config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return nil, errNoConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
