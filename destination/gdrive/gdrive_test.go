package gdrive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/dhcgn/mailscan-to-drive/destination"
)

func newTestStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Options{
		PageSize: 10,
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithoutAuthentication(),
			option.WithHTTPClient(srv.Client()),
		},
	}, nil)
	require.NoError(t, err)
	return s
}

func TestFolderQuery(t *testing.T) {
	assert.Equal(t, "mimeType='application/vnd.google-apps.folder' and trashed=false", FolderQuery(""))
	assert.Equal(t,
		"mimeType='application/vnd.google-apps.folder' and trashed=false and 'abc' in parents",
		FolderQuery("abc"))
	assert.Contains(t, FolderQuery(`o'brien`), `'o\'brien' in parents`)
}

func TestStore_ListFolders(t *testing.T) {
	var gotQuery, gotToken string
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotToken = r.URL.Query().Get("pageToken")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"nextPageToken": "next",
			"files": []map[string]any{
				{"id": "f1", "name": "John Smith", "parents": []string{"root"}},
				{"id": "f2", "name": "Unmatched Court Documents"},
			},
		})
	})

	page, err := s.ListFolders(context.Background(), destination.Query{ParentID: "root"}, "tok")
	require.NoError(t, err)

	assert.Equal(t, FolderQuery("root"), gotQuery)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "next", page.NextPageToken)
	require.Len(t, page.Folders, 2)
	assert.Equal(t, "f1", page.Folders[0].ID)
	assert.Equal(t, "root", page.Folders[0].ParentID)
	assert.Equal(t, "", page.Folders[1].ParentID)
}

func TestStore_CreateFolder(t *testing.T) {
	var body map[string]any
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new-id","name":"Jane Doe"}`))
	})

	f, err := s.CreateFolder(context.Background(), "Jane Doe", "parent-1")
	require.NoError(t, err)

	assert.Equal(t, "new-id", f.ID)
	assert.Equal(t, "Jane Doe", f.Name)
	assert.Equal(t, "parent-1", f.ParentID)
	assert.Equal(t, destination.FolderMimeType, body["mimeType"])
	assert.Equal(t, []any{"parent-1"}, body["parents"])
}

func TestStore_ListFoldersError(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	})

	_, err := s.ListFolders(context.Background(), destination.Query{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list drive folders")
}
