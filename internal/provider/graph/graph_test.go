package graph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pysugar/cloud-nexus/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "graph-access"

// newTestAdapter starts a fake Graph endpoint routed by method and path.
func newTestAdapter(t *testing.T, routes map[string]http.HandlerFunc) *Adapter {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"Access token has expired or is not yet valid."}}`))
			return
		}
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	return New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestListFilesFollowsNextLink(t *testing.T) {
	var base string
	a := newTestAdapter(t, map[string]http.HandlerFunc{
		"GET /me/drive/root/children": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				respond(`{"value":[{"id":"F2","name":"Photos","size":0,"folder":{"childCount":3}}]}`)(w, r)
				return
			}
			base = "http://" + r.Host
			respond(`{"value":[{"id":"F1","name":"cv.pdf","size":1200,"webUrl":"https://onedrive.live.com/cv",
				"file":{"mimeType":"application/pdf"},"parentReference":{"id":"ROOT","path":"/drive/root:"},
				"lastModifiedDateTime":"2026-03-01T10:00:00Z",
				"thumbnails":[{"medium":{"url":"https://thumbs/cv"}}]}],
				"@odata.nextLink":"` + base + `/me/drive/root/children?page=2"}`)(w, r)
		},
	})

	files, err := a.ListFiles(context.Background(), testToken)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "F1", files[0].ID)
	assert.Equal(t, "application/pdf", files[0].MIMEType)
	assert.Equal(t, "ROOT", files[0].ParentID)
	assert.Equal(t, "/drive/root:/cv.pdf", files[0].Path)
	assert.Equal(t, "https://thumbs/cv", files[0].ThumbnailURL)
	assert.Equal(t, int64(1200), files[0].Size)

	assert.True(t, files[1].IsFolder)
	assert.Equal(t, provider.FolderMIME, files[1].MIMEType)
}

func TestExpiredTokenClassified(t *testing.T) {
	a := newTestAdapter(t, nil)

	_, err := a.ListFiles(context.Background(), "stale")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrAuthExpired)

	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, "list files", pe.Op)
}

func TestUploadFile(t *testing.T) {
	a := newTestAdapter(t, map[string]http.HandlerFunc{
		"PUT /me/drive/root:/notes.txt:/content": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "hello", string(body))
			assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
			respond(`{"id":"N1","name":"notes.txt","size":5,"file":{"mimeType":"text/plain"}}`)(w, r)
		},
		"PUT /me/drive/items/DIR:/notes.txt:/content": respond(`{"id":"N2","name":"notes.txt","size":5,"file":{"mimeType":"text/plain"},"parentReference":{"id":"DIR"}}`),
	})
	ctx := context.Background()

	f, err := a.UploadFile(ctx, testToken, provider.Upload{Name: "notes.txt", MIMEType: "text/plain", Content: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, "N1", f.ID)

	f, err = a.UploadFile(ctx, testToken, provider.Upload{Name: "notes.txt", MIMEType: "text/plain", FolderID: "DIR", Content: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, "DIR", f.ParentID)
}

func TestUploadTooLarge(t *testing.T) {
	a := newTestAdapter(t, nil)

	_, err := a.UploadFile(context.Background(), testToken, provider.Upload{
		Name:    "big.bin",
		Content: make([]byte, SimpleUploadLimit+1),
	})
	assert.ErrorIs(t, err, provider.ErrValidation)
	assert.Contains(t, err.Error(), "large file upload not supported")
}

func TestCreateFolderRequestsRename(t *testing.T) {
	a := newTestAdapter(t, map[string]http.HandlerFunc{
		"POST /me/drive/items/P1/children": func(w http.ResponseWriter, r *http.Request) {
			var in map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "rename", in["@microsoft.graph.conflictBehavior"])
			assert.Equal(t, "Reports", in["name"])
			respond(`{"id":"D9","name":"Reports 1","folder":{"childCount":0},"parentReference":{"id":"P1"}}`)(w, r)
		},
	})

	f, err := a.CreateFolder(context.Background(), testToken, "Reports", "P1")
	require.NoError(t, err)
	assert.Equal(t, "Reports 1", f.Name)
	assert.True(t, f.IsFolder)
}

func TestRenameDeleteDownload(t *testing.T) {
	a := newTestAdapter(t, map[string]http.HandlerFunc{
		"PATCH /me/drive/items/F1": respond(`{"id":"F1","name":"renamed.pdf","file":{"mimeType":"application/pdf"}}`),
		"DELETE /me/drive/items/F1": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"GET /me/drive/items/F1/content": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pdf-bytes"))
		},
	})
	ctx := context.Background()

	f, err := a.RenameFile(ctx, testToken, "F1", "renamed.pdf")
	require.NoError(t, err)
	assert.Equal(t, "renamed.pdf", f.Name)

	data, err := a.DownloadFile(ctx, testToken, "F1")
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))

	require.NoError(t, a.DeleteFile(ctx, testToken, "F1"))

	err = a.DeleteFile(ctx, testToken, "GONE")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestQuotaEmailAndLink(t *testing.T) {
	a := newTestAdapter(t, map[string]http.HandlerFunc{
		"GET /me/drive":          respond(`{"quota":{"total":5368709120,"used":1048576,"remaining":5367660544}}`),
		"GET /me":                respond(`{"mail":null,"userPrincipalName":"someone@outlook.com"}`),
		"GET /me/drive/items/F1": respond(`{"id":"F1","webUrl":"https://onedrive.live.com/F1"}`),
	})
	ctx := context.Background()

	q, err := a.StorageQuota(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(5368709120), q.Total)
	assert.Equal(t, int64(1048576), q.Used)

	email, err := a.UserEmail(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, "someone@outlook.com", email)

	link, err := a.PreviewLink(ctx, testToken, "F1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(link, "/F1"))
}

func TestUnsupportedOperations(t *testing.T) {
	a := New(Options{})
	ctx := context.Background()

	_, err := a.MoveFile(ctx, testToken, "F1", "/x")
	assert.ErrorIs(t, err, provider.ErrUnsupported)

	_, err = a.ExportFile(ctx, testToken, "F1", "application/pdf")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}
