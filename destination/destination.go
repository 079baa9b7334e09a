// Package destination describes the cloud file store that scanned documents are
// delivered to, and provides local-filesystem and dry-run implementations.
package destination

import (
	"context"
	"io"

	"github.com/dhcgn/mailscan-to-drive/model"
)

const (
	FolderMimeType = "application/vnd.google-apps.folder"
	PDFMimeType    = "application/pdf"
)

// Query restricts a folder listing. An empty ParentID lists every folder.
type Query struct {
	ParentID string
}

// Page is one provider page of folders. An empty NextPageToken ends the listing.
type Page struct {
	Folders       []model.Folder
	NextPageToken string
}

type FolderStore interface {
	ListFolders(ctx context.Context, q Query, pageToken string) (Page, error)
	CreateFolder(ctx context.Context, name, parentID string) (model.Folder, error)
}

// Upload describes a file to place into a folder.
type Upload struct {
	Name     string
	MimeType string
	ParentID string
	Body     io.Reader
}

type FileStore interface {
	Upload(ctx context.Context, u Upload) (string, error)
}

type Store interface {
	FolderStore
	FileStore
}
