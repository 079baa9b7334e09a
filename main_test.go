package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailscan-to-drive/config"
	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/ledger"
	"github.com/dhcgn/mailscan-to-drive/resolve"
)

func TestRun_EndToEnd(t *testing.T) {
	var downloads atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v1/mail-items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "completed", r.URL.Query().Get("scan.status"))
		node := func(id, name string) map[string]any {
			return map[string]any{"node": map[string]any{
				"id":          id,
				"recipients":  map[string]any{"line1": map[string]any{"text": name}},
				"scanDetails": map[string]any{"imageUrl": srv.URL + "/scans/" + id + ".pdf"},
			}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"edges":    []any{node("m1", "John Smith"), node("m2", "Jane Doe")},
			"pageInfo": map[string]any{"hasNextPage": false},
		})
	})
	mux.HandleFunc("/scans/", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})

	localRoot := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(localRoot, "John Smith"), 0o755))

	stateDir := t.TempDir()
	cfg := config.Config{
		APIKey:        "test-key",
		FeedURL:       srv.URL + "/v1/mail-items",
		Status:        "completed",
		PageSize:      50,
		Destination:   config.DestinationLocal,
		LocalRoot:     localRoot,
		RootFolderID:  destination.LocalRootID,
		DefaultFolder: resolve.DefaultFolderName,
		MatchPolicy:   string(resolve.PolicyStrict),
		Ledger:        string(ledger.BackendFile),
		StateDir:      stateDir,
		ScratchDir:    t.TempDir(),
		HTTPTimeout:   5 * time.Second,
		LogLevel:      "debug",
		LogFormat:     "text",
	}
	logger := slog.New(slog.DiscardHandler)

	require.NoError(t, run(context.Background(), cfg, logger))
	assert.FileExists(t, filepath.Join(localRoot, "John Smith", "m1.pdf"))
	assert.FileExists(t, filepath.Join(localRoot, resolve.DefaultFolderName, "Jane Doe_m2.pdf"))
	assert.Equal(t, int32(2), downloads.Load())

	require.NoError(t, run(context.Background(), cfg, logger))
	assert.Equal(t, int32(2), downloads.Load(), "second run downloads nothing")

	l, err := ledger.NewFileLedger(stateDir, nil)
	require.NoError(t, err)
	defer l.Close()
	ids, err := l.ProcessedIDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestRun_DryRunLeavesNoTrace(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"edges":[{"node":{"id":"m1","recipients":{"line1":{"text":"John Smith"}},"scanDetails":{"imageUrl":"` + srv.URL + `/scan"}}}],"pageInfo":{"hasNextPage":false}}`))
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	})

	localRoot, stateDir := t.TempDir(), t.TempDir()
	cfg := config.Config{
		APIKey:       "k",
		FeedURL:      srv.URL + "/items",
		PageSize:     50,
		Destination:  config.DestinationLocal,
		LocalRoot:    localRoot,
		RootFolderID: destination.LocalRootID,
		MatchPolicy:  string(resolve.PolicyBest),
		Ledger:       string(ledger.BackendFile),
		StateDir:     stateDir,
		HTTPTimeout:  5 * time.Second,
		DryRun:       true,
		LogLevel:     "debug",
	}

	require.NoError(t, run(context.Background(), cfg, slog.New(slog.DiscardHandler)))

	entries, err := os.ReadDir(localRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run creates no folders")

	l, err := ledger.NewFileLedger(stateDir, nil)
	require.NoError(t, err)
	defer l.Close()
	ids, err := l.ProcessedIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "dry run records nothing")
}

func TestSetupLogger_LogDir(t *testing.T) {
	dir := t.TempDir()
	logger, cleanup, err := setupLogger(config.Config{LogLevel: "debug", LogFormat: "json", LogDir: dir})
	require.NoError(t, err)

	logger.Debug("hello", "mailID", "m1")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(filepath.Join(dir, "mailscan-to-drive.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mailID":"m1"`)
}
