package destination

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/dhcgn/mailscan-to-drive/model"
)

const dryRunPrefix = "dry-run:"

type dryRun struct {
	inner  Store
	logger *slog.Logger
}

// DryRun wraps a store so that listings reach the real store while folder
// creation and uploads are only logged.
func DryRun(inner Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &dryRun{inner: inner, logger: logger}
}

func (d *dryRun) ListFolders(ctx context.Context, q Query, pageToken string) (Page, error) {
	if strings.HasPrefix(q.ParentID, dryRunPrefix) {
		return Page{}, nil
	}
	return d.inner.ListFolders(ctx, q, pageToken)
}

func (d *dryRun) CreateFolder(ctx context.Context, name, parentID string) (model.Folder, error) {
	id := dryRunPrefix + parentID + "/" + name
	d.logger.Info("dry-run create folder", "name", name, "parentID", parentID)
	return model.Folder{ID: id, Name: name, ParentID: parentID}, nil
}

func (d *dryRun) Upload(ctx context.Context, u Upload) (string, error) {
	n, err := io.Copy(io.Discard, u.Body)
	if err != nil {
		return "", err
	}
	d.logger.Info("dry-run upload", "name", u.Name, "folderID", u.ParentID, "bytes", n)
	return dryRunPrefix + u.Name, nil
}
