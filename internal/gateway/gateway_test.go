package gateway

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pysugar/cloud-nexus/internal/activity"
	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/preview"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

// fakeAdapter keeps files in memory. DROPBOX-typed fakes use lowercase
// paths as ids and support move.
type fakeAdapter struct {
	typ provider.Type

	mu        sync.Mutex
	files     map[string]provider.RemoteFile
	content   map[string][]byte
	listErr   error
	lists     int
	refreshes int
	uploads   []provider.Upload
	exports   []string
	quota     provider.Quota
	email     string
	seq       int
}

func newFake(typ provider.Type) *fakeAdapter {
	return &fakeAdapter{
		typ:     typ,
		files:   map[string]provider.RemoteFile{},
		content: map[string][]byte{},
		quota:   provider.Quota{Total: 1000, Used: 100},
		email:   strings.ToLower(string(typ)) + "@example.com",
	}
}

func (f *fakeAdapter) put(rf provider.RemoteFile, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[rf.ID] = rf
	f.content[rf.ID] = content
}

func (f *fakeAdapter) newID(name, parent string) string {
	if f.typ == provider.Dropbox {
		return strings.ToLower(path.Join("/", parent, name))
	}
	f.seq++
	return fmt.Sprintf("%s-%d", strings.ToLower(string(f.typ)), f.seq)
}

func (f *fakeAdapter) Type() provider.Type { return f.typ }

func (f *fakeAdapter) ListFiles(context.Context, string) ([]provider.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]provider.RemoteFile, 0, len(f.files))
	for _, rf := range f.files {
		out = append(out, rf)
	}
	return out, nil
}

func (f *fakeAdapter) UploadFile(_ context.Context, _ string, in provider.Upload) (*provider.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, in)
	rf := provider.RemoteFile{ID: f.newID(in.Name, in.FolderID), Name: in.Name, MIMEType: in.MIMEType, Size: int64(len(in.Content)), ParentID: in.FolderID}
	f.files[rf.ID] = rf
	f.content[rf.ID] = in.Content
	return &rf, nil
}

func (f *fakeAdapter) DownloadFile(_ context.Context, _, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.content[id]
	if !ok {
		return nil, &provider.Error{Op: "download file", Provider: f.typ, StatusCode: 404, Err: provider.ErrNotFound}
	}
	return data, nil
}

func (f *fakeAdapter) DeleteFile(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return &provider.Error{Op: "delete file", Provider: f.typ, StatusCode: 404, Err: provider.ErrNotFound}
	}
	delete(f.files, id)
	delete(f.content, id)
	return nil
}

func (f *fakeAdapter) relocate(id, newID, name string) (*provider.RemoteFile, error) {
	rf, ok := f.files[id]
	if !ok {
		return nil, &provider.Error{Op: "relocate", Provider: f.typ, StatusCode: 404, Err: provider.ErrNotFound}
	}
	delete(f.files, id)
	rf.ID, rf.Name = newID, name
	if f.typ == provider.Dropbox {
		rf.Path = newID
		rf.ParentID = path.Dir(newID)
	}
	f.files[newID] = rf
	f.content[newID] = f.content[id]
	return &rf, nil
}

func (f *fakeAdapter) RenameFile(_ context.Context, _, id, newName string) (*provider.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	newID := id
	if f.typ == provider.Dropbox {
		newID = strings.ToLower(path.Join(path.Dir(id), newName))
	}
	return f.relocate(id, newID, newName)
}

func (f *fakeAdapter) MoveFile(_ context.Context, _, id, newPath string) (*provider.RemoteFile, error) {
	if f.typ != provider.Dropbox {
		return nil, &provider.Error{Op: "move file", Provider: f.typ, Message: "move is not supported", Err: provider.ErrUnsupported}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relocate(id, strings.ToLower(newPath), path.Base(newPath))
}

func (f *fakeAdapter) CreateFolder(_ context.Context, _, name, parentID string) (*provider.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rf := provider.RemoteFile{ID: f.newID(name, parentID), Name: name, MIMEType: provider.FolderMIME, IsFolder: true, ParentID: parentID}
	f.files[rf.ID] = rf
	return &rf, nil
}

func (f *fakeAdapter) StorageQuota(context.Context, string) (*provider.Quota, error) {
	q := f.quota
	return &q, nil
}

func (f *fakeAdapter) ExportFile(_ context.Context, _, id, mimeType string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, mimeType)
	return f.content[id], nil
}

func (f *fakeAdapter) PreviewLink(_ context.Context, _, id string) (string, error) {
	return "https://example.com/preview/" + id, nil
}

func (f *fakeAdapter) UserEmail(context.Context, string) (string, error) {
	return f.email, nil
}

func (f *fakeAdapter) ExchangeCode(_ context.Context, code string) (*provider.TokenSet, error) {
	if code == "" {
		return nil, &provider.Error{Op: "exchange code", Err: provider.ErrValidation}
	}
	return &provider.TokenSet{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresIn: time.Hour}, nil
}

func (f *fakeAdapter) RefreshToken(context.Context, string) (*provider.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return &provider.TokenSet{AccessToken: fmt.Sprintf("fresh-%d", f.refreshes), ExpiresIn: 4 * time.Hour}, nil
}

type env struct {
	g        *Gateway
	accounts *db.AccountStore
	files    *db.FileStore
	drive    *fakeAdapter
	graph    *fakeAdapter
	box      *fakeAdapter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb, err := db.InitDB(":memory:", false)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := func() time.Time { return testNow }
	logger := zaptest.NewLogger(t)
	e := &env{
		accounts: db.NewAccountStore(gdb),
		files:    db.NewFileStore(gdb),
		drive:    newFake(provider.Drive),
		graph:    newFake(provider.Graph),
		box:      newFake(provider.Dropbox),
	}
	registry := provider.NewRegistry(e.drive, e.graph, e.box)
	tokens := token.NewManager(e.accounts, registry, logger)
	tokens.SetClock(clock)
	monitor := activity.NewMonitor(db.NewActivityStore(gdb), logger)
	monitor.SetClock(clock)

	e.g = New(Deps{
		Accounts: e.accounts,
		Files:    e.files,
		Activity: monitor,
		Registry: registry,
		Tokens:   tokens,
		Previews: preview.NewResolver(tokens, registry, e.files, logger),
		Logger:   logger,
	})
	e.g.SetClock(clock)
	return e
}

func (e *env) connect(t *testing.T, userID string, p provider.Type, expiresIn time.Duration) *models.Account {
	t.Helper()
	expiry := testNow.Add(expiresIn)
	acc, err := e.accounts.Connect(context.Background(), &models.Account{
		UserID:       userID,
		Provider:     p,
		Email:        userID + "-" + strings.ToLower(string(p)) + "@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  &expiry,
		ConnectedAt:  testNow,
	})
	require.NoError(t, err)
	return acc
}

func (e *env) cache(t *testing.T, acc *models.Account, fake *fakeAdapter, rf provider.RemoteFile, content []byte) *models.FileRecord {
	t.Helper()
	fake.put(rf, content)
	rec, err := e.files.Upsert(context.Background(), acc, rf)
	require.NoError(t, err)
	return rec
}

func TestListFilesRefreshesExpiringDropboxToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.connect(t, "u1", provider.Dropbox, 30*time.Second)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		e.box.put(provider.RemoteFile{ID: "/" + name, Name: name, MIMEType: "text/plain", Size: 3}, []byte("abc"))
	}

	listing, err := e.g.ListFiles(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, listing.Stale)
	assert.Len(t, listing.Files, 3)
	assert.Equal(t, 1, e.box.refreshes)
	assert.Equal(t, 1, e.box.lists)

	stored, err := e.accounts.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-1", stored.AccessToken)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, stored.LastSyncedAt.Equal(testNow))
	require.NotNil(t, stored.TotalStorage)
	assert.Equal(t, int64(1000), *stored.TotalStorage)
	assert.Equal(t, int64(100), *stored.UsedStorage)

	cached, err := e.files.ListByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, cached, 3)
}

func TestListFilesFallsBackToCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.connect(t, "u1", provider.Graph, time.Hour)
	rec := e.cache(t, acc, e.graph, provider.RemoteFile{ID: "A", Name: "cached.txt", MIMEType: "text/plain", Size: 7}, nil)
	e.graph.listErr = &provider.Error{Op: "list files", Provider: provider.Graph, StatusCode: 503, Err: provider.ErrTransientNetwork}

	listing, err := e.g.ListFiles(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, listing.Stale)
	require.Len(t, listing.Files, 1)
	assert.Equal(t, rec.ID, listing.Files[0].ID)
	assert.Equal(t, "cached.txt", listing.Files[0].Name)
	assert.NotEmpty(t, listing.Warning)
}

func TestListFilesWithoutCacheFails(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Graph, time.Hour)
	e.graph.listErr = &provider.Error{Op: "list files", Provider: provider.Graph, StatusCode: 503, Err: provider.ErrTransientNetwork}

	_, err := e.g.ListFiles(context.Background(), acc.ID)
	assert.ErrorIs(t, err, provider.ErrTransientNetwork)
}

func TestConnectAndDisconnect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.g.CompleteAuthorization(ctx, "u1", provider.Graph, "code1")
	require.NoError(t, err)
	assert.Equal(t, "graph@example.com", first.Email)
	require.NotNil(t, first.TokenExpiry)
	assert.True(t, first.TokenExpiry.Equal(testNow.Add(time.Hour-token.RefreshSkew)))

	again, err := e.g.ConnectAccount(ctx, "u1", provider.Graph, &provider.TokenSet{AccessToken: "a2"}, "graph@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.TokenExpiry.Equal(testNow.Add(token.DefaultTTL)))

	accounts, err := e.g.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, e.g.Disconnect(ctx, first.ID))
	accounts, err = e.g.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = e.g.ListFiles(ctx, first.ID)
	assert.ErrorIs(t, err, provider.ErrAuthRevoked)

	_, err = e.g.ConnectAccount(ctx, "u1", provider.Graph, &provider.TokenSet{}, "x@example.com")
	assert.ErrorIs(t, err, provider.ErrValidation)
}

func TestUploadAndDownload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.connect(t, "u1", provider.Drive, time.Hour)

	_, err := e.g.Upload(ctx, acc.ID, provider.Upload{Name: "empty.txt"})
	assert.ErrorIs(t, err, provider.ErrValidation)

	rec, err := e.g.Upload(ctx, acc.ID, provider.Upload{Name: "notes.txt", MIMEType: "text/plain", Content: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Size)
	assert.Equal(t, acc.UserID, rec.UserID)

	dl, err := e.g.Download(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", dl.Name)
	assert.Equal(t, []byte("hello"), dl.Content)

	stored, err := e.files.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastAccessedAt)
}

func TestDownloadExportsWorkspaceDocument(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Drive, time.Hour)
	rec := e.cache(t, acc, e.drive, provider.RemoteFile{ID: "d1", Name: "Plan", MIMEType: "application/vnd.google-apps.document"}, []byte("docx"))

	dl, err := e.g.Download(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan.docx", dl.Name)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", dl.MIMEType)
	assert.Equal(t, []string{dl.MIMEType}, e.drive.exports)
}

func TestRenameRekeysDropboxRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.connect(t, "u1", provider.Dropbox, time.Hour)
	rec := e.cache(t, acc, e.box, provider.RemoteFile{ID: "/docs/old.txt", Name: "old.txt", ParentID: "/docs"}, []byte("x"))

	_, err := e.g.Rename(ctx, rec.ID, "  ")
	assert.ErrorIs(t, err, provider.ErrValidation)

	renamed, err := e.g.Rename(ctx, rec.ID, "New.txt")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, renamed.ID)
	assert.Equal(t, "/docs/new.txt", renamed.ProviderFileID)
	assert.Equal(t, "New.txt", renamed.Name)

	moved, err := e.g.Move(ctx, rec.ID, "/archive/new.txt")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, moved.ID)
	assert.Equal(t, "/archive/new.txt", moved.ProviderFileID)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, "/archive", *moved.ParentID)

	recs, err := e.files.ListByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRenameKeepsIDOnGraph(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Graph, time.Hour)
	rec := e.cache(t, acc, e.graph, provider.RemoteFile{ID: "G1", Name: "a.txt"}, []byte("x"))

	renamed, err := e.g.Rename(context.Background(), rec.ID, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "G1", renamed.ProviderFileID)
	assert.Equal(t, "b.txt", renamed.Name)
}

func TestMoveUnsupportedOnGraph(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Graph, time.Hour)
	rec := e.cache(t, acc, e.graph, provider.RemoteFile{ID: "G1", Name: "a.txt"}, []byte("x"))

	_, err := e.g.Move(context.Background(), rec.ID, "/elsewhere/a.txt")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestCreateFolderAndBatchDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.connect(t, "u1", provider.Dropbox, time.Hour)

	folder, err := e.g.CreateFolder(ctx, acc.ID, "Photos", "")
	require.NoError(t, err)
	assert.True(t, folder.IsFolder)
	assert.Equal(t, "/photos", folder.ProviderFileID)

	file := e.cache(t, acc, e.box, provider.RemoteFile{ID: "/a.txt", Name: "a.txt"}, []byte("x"))
	gone := e.cache(t, acc, e.box, provider.RemoteFile{ID: "/gone.txt", Name: "gone.txt"}, nil)
	require.NoError(t, e.box.DeleteFile(ctx, "", "/gone.txt"))

	res := e.g.BatchDelete(ctx, []string{folder.ID, file.ID, gone.ID, "missing"})
	assert.ElementsMatch(t, []string{folder.ID, file.ID, gone.ID}, res.Succeeded)
	require.Contains(t, res.Failed, "missing")
	assert.Len(t, res.Failed, 1)

	recs, err := e.files.ListByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCopyAcrossProviders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.connect(t, "u1", provider.Drive, time.Hour)
	dst := e.connect(t, "u1", provider.Graph, time.Hour)
	rec := e.cache(t, src, e.drive, provider.RemoteFile{ID: "s1", Name: "Budget", MIMEType: "application/vnd.google-apps.spreadsheet"}, []byte("sheet-bytes"))

	copied, err := e.g.Copy(ctx, rec.ID, dst.ID, " folder-1 ", "u1")
	require.NoError(t, err)
	assert.Equal(t, dst.ID, copied.AccountID)
	assert.Equal(t, "Budget.xlsx", copied.Name)

	require.Len(t, e.graph.uploads, 1)
	up := e.graph.uploads[0]
	assert.Equal(t, "folder-1", up.FolderID)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", up.MIMEType)
	assert.Equal(t, []byte("sheet-bytes"), up.Content)

	stored, err := e.accounts.Get(ctx, dst.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSyncedAt)
}

func TestCopyRejections(t *testing.T) {
	e := newEnv(t)
	src := e.connect(t, "u1", provider.Drive, time.Hour)
	dst := e.connect(t, "u1", provider.Dropbox, time.Hour)
	foreign := e.connect(t, "u2", provider.Graph, time.Hour)

	file := e.cache(t, src, e.drive, provider.RemoteFile{ID: "f", Name: "a.txt", MIMEType: "text/plain"}, []byte("x"))
	folder := e.cache(t, src, e.drive, provider.RemoteFile{ID: "d", Name: "dir", MIMEType: provider.WorkspaceFolderMIME, IsFolder: true}, nil)
	empty := e.cache(t, src, e.drive, provider.RemoteFile{ID: "e", Name: "empty.txt", MIMEType: "text/plain"}, []byte{})

	tests := []struct {
		name    string
		fileID  string
		target  string
		userID  string
		wantErr error
	}{
		{"foreign file", file.ID, dst.ID, "u2", provider.ErrPermissionDenied},
		{"foreign target", file.ID, foreign.ID, "u1", provider.ErrPermissionDenied},
		{"folder source", folder.ID, dst.ID, "u1", provider.ErrUnsupported},
		{"empty source", empty.ID, dst.ID, "u1", provider.ErrValidation},
		{"unknown file", "nope", dst.ID, "u1", provider.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.g.Copy(context.Background(), tt.fileID, tt.target, "", tt.userID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, e.box.uploads)
}

func TestPreviewThroughGateway(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Dropbox, time.Hour)
	rec := e.cache(t, acc, e.box, provider.RemoteFile{ID: "/big.pdf", Name: "big.pdf", MIMEType: "application/pdf", Size: 10 << 20}, nil)

	p, err := e.g.Preview(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, preview.ModeExternalLink, p.Mode)
	assert.Equal(t, "https://example.com/preview//big.pdf", p.URL)
}

func TestSearchStarAndAnalytics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	drive := e.connect(t, "u1", provider.Drive, time.Hour)
	box := e.connect(t, "u1", provider.Dropbox, time.Hour)

	a, err := e.g.Upload(ctx, drive.ID, provider.Upload{Name: "a.png", MIMEType: "image/png", Content: []byte("0123456789a")})
	require.NoError(t, err)
	_, err = e.g.Upload(ctx, drive.ID, provider.Upload{Name: "b.pdf", MIMEType: "application/pdf", Content: []byte("01234")})
	require.NoError(t, err)
	_, err = e.g.CreateFolder(ctx, box.ID, "Dir", "")
	require.NoError(t, err)
	_, err = e.g.Download(ctx, a.ID)
	require.NoError(t, err)

	starred, err := e.g.ToggleStar(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, starred.Starred)

	yes := true
	found, err := e.g.Search(ctx, "u1", db.SearchFilter{Starred: &yes})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)

	stats, err := e.g.Analytics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(1), stats.TotalFolders)
	assert.Equal(t, int64(16), stats.TotalSize)
	assert.Equal(t, "16 B", stats.FormattedTotalSize)
	assert.Equal(t, "DRIVE", stats.MostUsedProvider)
	assert.Equal(t, int64(2), stats.UploadCount)
	assert.Equal(t, int64(2), stats.TodayUploads)
	assert.Equal(t, int64(1), stats.DownloadCount)

	empty, err := e.g.Analytics(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "NONE", empty.MostUsedProvider)
}

func TestAuthorize(t *testing.T) {
	e := newEnv(t)
	acc := e.connect(t, "u1", provider.Graph, time.Hour)
	rec := e.cache(t, acc, e.graph, provider.RemoteFile{ID: "G1", Name: "a.txt"}, nil)
	ctx := context.Background()

	assert.NoError(t, e.g.AuthorizeAccount(ctx, "u1", acc.ID))
	assert.NoError(t, e.g.AuthorizeFile(ctx, "u1", rec.ID))
	assert.ErrorIs(t, e.g.AuthorizeAccount(ctx, "u2", acc.ID), provider.ErrPermissionDenied)
	assert.ErrorIs(t, e.g.AuthorizeFile(ctx, "u2", rec.ID), provider.ErrPermissionDenied)
	assert.ErrorIs(t, e.g.AuthorizeFile(ctx, "u1", "nope"), provider.ErrNotFound)
}

func TestWrapKeepsClassifiedErrors(t *testing.T) {
	classified := &provider.Error{Op: "x", Err: provider.ErrQuotaExceeded}
	assert.Same(t, classified, wrap("op", classified))

	plain := wrap("upload file", errors.New("disk full"))
	assert.EqualError(t, plain, "upload file: disk full")
}
