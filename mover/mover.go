// Package mover copies a scanned document from its source URL into a
// destination folder through a scratch file.
package mover

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/dhcgn/mailscan-to-drive/destination"
)

const DefaultHTTPTimeout = 60 * time.Second

// DownloadError reports a non-success response from the document source.
type DownloadError struct {
	StatusCode int
	URL        string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}

type Request struct {
	ItemID    string
	SourceURL string
	FileName  string
	FolderID  string
}

type Options struct {
	HTTPClient *http.Client
	// ScratchDir holds temporary downloads; empty uses the OS temp dir.
	ScratchDir string
}

type Mover struct {
	files      destination.FileStore
	client     *http.Client
	scratchDir string
	logger     *slog.Logger
}

func New(files destination.FileStore, opts Options, logger *slog.Logger) *Mover {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Mover{
		files:      files,
		client:     client,
		scratchDir: opts.ScratchDir,
		logger:     logger,
	}
}

// Move downloads req.SourceURL and uploads it as req.FileName into
// req.FolderID, returning the stored object's id. The scratch file is removed
// on every path.
func (m *Mover) Move(ctx context.Context, req Request) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &DownloadError{StatusCode: resp.StatusCode, URL: req.SourceURL}
	}

	scratch, err := os.CreateTemp(m.scratchDir, "mailscan-*")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		_ = scratch.Close()
		if rmErr := os.Remove(scratch.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Warn("remove scratch file", "path", scratch.Name(), "error", rmErr)
		}
	}()

	size, err := io.Copy(scratch, resp.Body)
	if err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind scratch file: %w", err)
	}

	id, err := m.files.Upload(ctx, destination.Upload{
		Name:     req.FileName,
		MimeType: contentType(resp.Header.Get("Content-Type")),
		ParentID: req.FolderID,
		Body:     scratch,
	})
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}

	m.logger.Debug("document moved",
		"mailID", req.ItemID,
		"file", req.FileName,
		"folderID", req.FolderID,
		"bytes", size,
		"objectID", id,
	)
	return id, nil
}

func contentType(header string) string {
	if header == "" {
		return destination.PDFMimeType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		return destination.PDFMimeType
	}
	return mediaType
}
