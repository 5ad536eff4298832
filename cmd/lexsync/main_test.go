package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexsync/core"
)

const memoryConfig = `
blob:
  backend: memory
database:
  driver: memory
index:
  in_memory: true
ai:
  provider: mock
extract:
  ocr: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestCommandsRegistered(t *testing.T) {
	app := newApp()
	for _, name := range []string{"ingest", "upload", "sync", "analyze", "reindex", "retry-failed", "search", "serve", "watch"} {
		assert.NotNil(t, findCommand(t, app, name))
	}
}

func TestIngestCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "ingest")

	var query *cli.StringFlag
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == "query" {
			query = f
		}
	}
	require.NotNil(t, query)
	assert.True(t, query.Required)
	assert.Empty(t, query.Value)
}

func TestReindexCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp(), "reindex")

	ints := map[string]int{}
	for _, flag := range cmd.Flags {
		if f, ok := flag.(*cli.IntFlag); ok {
			ints[f.Name] = f.Value
		}
	}
	assert.Equal(t, 100, ints["batch-size"])
	assert.Equal(t, 100, ints["report-interval"])
	assert.Equal(t, 3, ints["max-retries"])
}

func TestReindexCommandValidation(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)

	t.Run("zero batch-size", func(t *testing.T) {
		err := newApp().Run([]string{"lexsync", "--config", cfg, "reindex", "--batch-size", "0"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch-size")
	})

	t.Run("zero max-retries", func(t *testing.T) {
		err := newApp().Run([]string{"lexsync", "--config", cfg, "reindex", "--max-retries", "0"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max-retries")
	})
}

func TestIngestRequiresCatalogToken(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)
	t.Setenv("LEXSYNC_CATALOG_TOKEN", "")

	err := newApp().Run([]string{"lexsync", "--config", cfg, "ingest", "--query", "contract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.token")
}

func TestInvalidBackendFailsFast(t *testing.T) {
	cfg := writeConfig(t, strings.Replace(memoryConfig, "backend: memory", "backend: ftp", 1))

	err := newApp().Run([]string{"lexsync", "--config", cfg, "sync"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob.backend")
}

func TestUploadCommand(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)
	dir := t.TempDir()
	file := filepath.Join(dir, "Motion to Dismiss.txt")
	require.NoError(t, os.WriteFile(file, []byte("The defendant moves to dismiss the complaint for lack of jurisdiction."), 0o644))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run([]string{"lexsync", "--config", cfg, "upload", file}))
	assert.Contains(t, out.String(), string(core.StatusIndexed))
	assert.Contains(t, out.String(), "motion_to_dismiss")
}

func TestUploadCommandRequiresFiles(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)
	err := newApp().Run([]string{"lexsync", "--config", cfg, "upload"})
	require.Error(t, err)
}

func TestSyncCommandDryRunOnEmptyStores(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run([]string{"lexsync", "--config", cfg, "sync", "--dry-run"}))
	assert.Contains(t, out.String(), `"dry_run": true`)
	assert.Contains(t, out.String(), `"missing_metadata": 0`)
}

func TestSetupLogger(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
	cfg := writeConfig(t, memoryConfig)

	tests := []struct {
		name      string
		args      []string
		wantError bool
	}{
		{name: "default level from config", args: []string{"lexsync", "--config", cfg, "analyze"}},
		{name: "debug flag", args: []string{"lexsync", "--config", cfg, "--log-level", "debug", "analyze"}},
		{name: "uppercase flag", args: []string{"lexsync", "--config", cfg, "-l", "WARN", "analyze"}},
		{name: "invalid level", args: []string{"lexsync", "--config", cfg, "--log-level", "verbose", "analyze"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			app := newApp()
			app.Writer = &out
			err := app.Run(tt.args)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), `"total_files": 0`)
		})
	}
}

func TestSetupLoggerRejectsUnknownFormat(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
	cfg := writeConfig(t, memoryConfig+"log:\n  format: xml\n")

	err := newApp().Run([]string{"lexsync", "--config", cfg, "analyze"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
