package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dhcgn/mailscan-to-drive/model"
)

const (
	defaultLocalPageSize = 100
	// LocalRootID addresses the root directory of a Local store.
	LocalRootID = "root"
)

// Local maps folders to directories below a root directory. Folder ids are
// slash-separated paths relative to the root; the root itself is LocalRootID.
type Local struct {
	root     string
	pageSize int
}

func NewLocal(root string, pageSize int) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local destination root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local destination root: %w", err)
	}
	if pageSize <= 0 {
		pageSize = defaultLocalPageSize
	}
	return &Local{root: root, pageSize: pageSize}, nil
}

// ListFolders lists direct subdirectories of q.ParentID, or every directory
// below the root when no parent is given. The page token is an offset.
func (l *Local) ListFolders(ctx context.Context, q Query, pageToken string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	var all []model.Folder
	if q.ParentID == "" {
		err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() || p == l.root {
				return nil
			}
			rel, err := filepath.Rel(l.root, p)
			if err != nil {
				return err
			}
			id := filepath.ToSlash(rel)
			all = append(all, model.Folder{ID: id, Name: d.Name(), ParentID: parentOf(id)})
			return nil
		})
		if err != nil {
			return Page{}, fmt.Errorf("walk local destination: %w", err)
		}
	} else {
		dir, err := l.dir(q.ParentID)
		if err != nil {
			return Page{}, err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return Page{}, fmt.Errorf("list folder %s: %w", q.ParentID, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			all = append(all, model.Folder{ID: joinID(q.ParentID, entry.Name()), Name: entry.Name(), ParentID: q.ParentID})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + l.pageSize
	if end > len(all) {
		end = len(all)
	}

	page := Page{Folders: all[offset:end]}
	if end < len(all) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (l *Local) CreateFolder(ctx context.Context, name, parentID string) (model.Folder, error) {
	if err := ctx.Err(); err != nil {
		return model.Folder{}, err
	}
	clean, err := sanitizeName(name)
	if err != nil {
		return model.Folder{}, err
	}
	parent, err := l.dir(parentID)
	if err != nil {
		return model.Folder{}, err
	}
	if err := os.Mkdir(filepath.Join(parent, clean), 0o755); err != nil && !os.IsExist(err) {
		return model.Folder{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	return model.Folder{ID: joinID(parentID, clean), Name: clean, ParentID: parentID}, nil
}

// Upload writes the body into the folder and returns the file's id.
func (l *Local) Upload(ctx context.Context, u Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := sanitizeName(u.Name)
	if err != nil {
		return "", err
	}
	parent, err := l.dir(u.ParentID)
	if err != nil {
		return "", err
	}

	target := filepath.Join(parent, clean)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", u.Name, err)
	}
	if _, err := io.Copy(out, u.Body); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("write file %q: %w", u.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close file %q: %w", u.Name, err)
	}
	return joinID(u.ParentID, clean), nil
}

func (l *Local) dir(id string) (string, error) {
	if id == "" || id == LocalRootID {
		return l.root, nil
	}
	clean := path.Clean("/" + id)
	if clean == "/" || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid folder id %q", id)
	}
	dir := filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("folder %s: %w", id, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("folder %s is not a directory", id)
	}
	return dir, nil
}

func parentOf(id string) string {
	parent := path.Dir(id)
	if parent == "." {
		return LocalRootID
	}
	return parent
}

func joinID(parentID, name string) string {
	if parentID == "" || parentID == LocalRootID {
		return name
	}
	return path.Join(parentID, name)
}

func sanitizeName(name string) (string, error) {
	clean := strings.TrimSpace(strings.NewReplacer("/", "_", "\\", "_").Replace(name))
	if clean == "" || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return clean, nil
}
