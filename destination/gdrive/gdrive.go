// Package gdrive implements the destination store on Google Drive.
package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/model"
)

const (
	defaultPageSize    = 100
	defaultCallTimeout = 2 * time.Minute
)

type Options struct {
	// CredentialsFile is a service-account JSON key.
	CredentialsFile string
	PageSize        int64
	CallTimeout     time.Duration
	// ClientOptions are appended after the credentials, e.g. a custom endpoint.
	ClientOptions []option.ClientOption
}

// Store talks to the Drive v3 files API.
type Store struct {
	files       *drive.FilesService
	pageSize    int64
	callTimeout time.Duration
	logger      *slog.Logger
}

func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(opts.CredentialsFile),
			option.WithScopes(drive.DriveScope),
		)
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Store{
		files:       svc.Files,
		pageSize:    pageSize,
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

// FolderQuery builds the files.list predicate for non-trashed folders.
func FolderQuery(parentID string) string {
	q := fmt.Sprintf("mimeType='%s' and trashed=false", destination.FolderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}
	return q
}

func (s *Store) ListFolders(ctx context.Context, q destination.Query, pageToken string) (destination.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	call := s.files.List().
		Q(FolderQuery(q.ParentID)).
		Fields("nextPageToken, files(id, name, parents)").
		PageSize(s.pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return destination.Page{}, fmt.Errorf("list drive folders: %w", err)
	}

	page := destination.Page{
		Folders:       make([]model.Folder, 0, len(resp.Files)),
		NextPageToken: resp.NextPageToken,
	}
	for _, f := range resp.Files {
		folder := model.Folder{ID: f.Id, Name: f.Name}
		if len(f.Parents) > 0 {
			folder.ParentID = f.Parents[0]
		}
		page.Folders = append(page.Folders, folder)
	}
	return page, nil
}

func (s *Store) CreateFolder(ctx context.Context, name, parentID string) (model.Folder, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	meta := &drive.File{Name: name, MimeType: destination.FolderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	created, err := s.files.Create(meta).
		Fields("id, name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return model.Folder{}, fmt.Errorf("create drive folder %q: %w", name, err)
	}

	s.logger.Info("drive folder created", "name", name, "folderID", created.Id, "parentID", parentID)
	return model.Folder{ID: created.Id, Name: name, ParentID: parentID}, nil
}

// Upload sends the body as a resumable media upload.
func (s *Store) Upload(ctx context.Context, u destination.Upload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = destination.PDFMimeType
	}

	meta := &drive.File{Name: u.Name}
	if u.ParentID != "" {
		meta.Parents = []string{u.ParentID}
	}

	created, err := s.files.Create(meta).
		Media(u.Body, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", u.Name, err)
	}
	return created.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
