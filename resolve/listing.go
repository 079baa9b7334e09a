package resolve

import (
	"context"
	"fmt"

	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/model"
)

// ListFlat collects every page of folders directly under parentID. An empty
// parentID lists every folder the store can see.
func ListFlat(ctx context.Context, store destination.FolderStore, parentID string) ([]model.Folder, error) {
	var (
		out   []model.Folder
		token string
	)
	for {
		page, err := store.ListFolders(ctx, destination.Query{ParentID: parentID}, token)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Folders...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// ListRecursive walks every folder below rootID breadth-first. Each directory
// level is paged separately; a folder reachable twice is visited once.
func ListRecursive(ctx context.Context, store destination.FolderStore, rootID string) ([]model.Folder, error) {
	if rootID == "" {
		return nil, ErrNoRoot
	}

	var (
		out     []model.Folder
		queue   = []string{rootID}
		visited = map[string]struct{}{rootID: {}}
	)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parent := queue[0]
		queue = queue[1:]

		children, err := ListFlat(ctx, store, parent)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", parent, err)
		}
		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}
