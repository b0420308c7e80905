package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAdapter struct {
	provider.Adapter
	typ       provider.Type
	content   []byte
	exported  []byte
	fail      error
	link      string
	linkErr   error
	downloads int
	exports   []string
}

func (f *fakeAdapter) Type() provider.Type { return f.typ }

func (f *fakeAdapter) DownloadFile(context.Context, string, string) ([]byte, error) {
	f.downloads++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.content, nil
}

func (f *fakeAdapter) ExportFile(_ context.Context, _, _, mimeType string) ([]byte, error) {
	f.exports = append(f.exports, mimeType)
	if f.fail != nil {
		return nil, f.fail
	}
	return f.exported, nil
}

func (f *fakeAdapter) PreviewLink(context.Context, string, string) (string, error) {
	return f.link, f.linkErr
}

type touches struct{ ids []string }

func (t *touches) Touch(_ context.Context, rec *models.FileRecord, at time.Time) error {
	t.ids = append(t.ids, rec.ID)
	rec.LastAccessedAt = &at
	return nil
}

func newResolver(t *testing.T, adapter *fakeAdapter) (*Resolver, *touches) {
	t.Helper()
	registry := provider.NewRegistry(adapter)
	logger := zaptest.NewLogger(t)
	// Accounts below carry no refresh token, so the store is never consulted.
	mgr := token.NewManager(nil, registry, logger)
	tc := &touches{}
	return NewResolver(mgr, registry, tc, logger), tc
}

func account(p provider.Type) *models.Account {
	return &models.Account{ID: "acc", UserID: "u1", Provider: p, AccessToken: "tok"}
}

var errBoom = &provider.Error{Op: "download file", Err: provider.ErrTransientNetwork, StatusCode: 503}

func TestResolveDecisionTable(t *testing.T) {
	const xlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	png := bytes.Repeat([]byte{0x89}, 2<<20)

	tests := []struct {
		name        string
		adapter     *fakeAdapter
		rec         models.FileRecord
		wantMode    Mode
		wantKind    Kind
		wantType    string
		wantURL     string
		wantContent []byte
		wantErr     error
	}{
		{
			name:     "folder",
			adapter:  &fakeAdapter{typ: provider.Graph},
			rec:      models.FileRecord{ID: "f", Name: "Docs", IsFolder: true, MIMEType: provider.FolderMIME},
			wantMode: ModeUnsupported,
		},
		{
			name:        "small png inline",
			adapter:     &fakeAdapter{typ: provider.Dropbox, content: png},
			rec:         models.FileRecord{ID: "f", Name: "a.png", MIMEType: "image/png", Size: int64(len(png))},
			wantMode:    ModeInline,
			wantKind:    KindImage,
			wantType:    "image/png",
			wantContent: png,
		},
		{
			name:     "large pdf opens externally",
			adapter:  &fakeAdapter{typ: provider.Dropbox, link: "https://dl.example.com/tmp"},
			rec:      models.FileRecord{ID: "f", Name: "big.pdf", MIMEType: "application/pdf", Size: 10 << 20},
			wantMode: ModeExternalLink,
			wantURL:  "https://dl.example.com/tmp",
		},
		{
			name:        "spreadsheet exported inline",
			adapter:     &fakeAdapter{typ: provider.Drive, exported: []byte("PK\x03\x04sheet")},
			rec:         models.FileRecord{ID: "f", Name: "Budget", MIMEType: "application/vnd.google-apps.spreadsheet"},
			wantMode:    ModeInline,
			wantKind:    KindBinary,
			wantType:    xlsx,
			wantContent: []byte("PK\x03\x04sheet"),
		},
		{
			name:     "large export opens externally",
			adapter:  &fakeAdapter{typ: provider.Drive, exported: make([]byte, InlineLimit+1), link: "https://drive.google.com/file/d/x/preview"},
			rec:      models.FileRecord{ID: "f", Name: "Deck", MIMEType: "application/vnd.google-apps.presentation"},
			wantMode: ModeExternalLink,
			wantURL:  "https://drive.google.com/file/d/x/preview",
		},
		{
			name:     "export failure uses stored link",
			adapter:  &fakeAdapter{typ: provider.Drive, fail: errBoom},
			rec:      models.FileRecord{ID: "f", Name: "Doc", MIMEType: "application/vnd.google-apps.document", WebViewURL: "https://docs.example.com/d"},
			wantMode: ModeExternalLink,
			wantURL:  "https://docs.example.com/d",
		},
		{
			name:     "export failure without link",
			adapter:  &fakeAdapter{typ: provider.Drive, fail: errBoom, linkErr: errBoom},
			rec:      models.FileRecord{ID: "f", Name: "Doc", MIMEType: "application/vnd.google-apps.document"},
			wantMode: ModeUnsupported,
		},
		{
			name:     "empty text file",
			adapter:  &fakeAdapter{typ: provider.Graph, content: []byte{}},
			rec:      models.FileRecord{ID: "f", Name: "empty.txt", MIMEType: "text/plain"},
			wantMode: ModeUnsupported,
		},
		{
			name:        "json is text",
			adapter:     &fakeAdapter{typ: provider.Graph, content: []byte(`{"a":1}`)},
			rec:         models.FileRecord{ID: "f", Name: "a.json", MIMEType: "application/json", Size: 7},
			wantMode:    ModeInline,
			wantKind:    KindText,
			wantType:    "application/json",
			wantContent: []byte(`{"a":1}`),
		},
		{
			name:     "download failure falls back to link",
			adapter:  &fakeAdapter{typ: provider.Graph, fail: errBoom},
			rec:      models.FileRecord{ID: "f", Name: "a.png", MIMEType: "image/png", Size: 10, WebViewURL: "https://onedrive.example.com/a"},
			wantMode: ModeExternalLink,
			wantURL:  "https://onedrive.example.com/a",
		},
		{
			name:    "download failure without link surfaces",
			adapter: &fakeAdapter{typ: provider.Dropbox, fail: errBoom, linkErr: errBoom},
			rec:     models.FileRecord{ID: "f", Name: "a.png", MIMEType: "image/png", Size: 10},
			wantErr: provider.ErrTransientNetwork,
		},
		{
			name:     "archive opens externally",
			adapter:  &fakeAdapter{typ: provider.Graph},
			rec:      models.FileRecord{ID: "f", Name: "a.zip", MIMEType: "application/zip", Size: 10, WebViewURL: "https://onedrive.example.com/z"},
			wantMode: ModeExternalLink,
			wantURL:  "https://onedrive.example.com/z",
		},
		{
			name:     "no link at all",
			adapter:  &fakeAdapter{typ: provider.Graph, linkErr: &provider.Error{Op: "preview link", Err: provider.ErrUnsupported}},
			rec:      models.FileRecord{ID: "f", Name: "a.bin", MIMEType: "application/octet-stream"},
			wantMode: ModeUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, tc := newResolver(t, tt.adapter)
			rec := tt.rec

			p, err := r.Resolve(context.Background(), account(tt.adapter.typ), &rec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, tc.ids)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, p.Mode)
			assert.Equal(t, tt.wantKind, p.Kind)
			assert.Equal(t, tt.wantType, p.ContentType)
			assert.Equal(t, tt.wantURL, p.URL)
			assert.Equal(t, tt.wantMode == ModeInline, p.Available)
			if tt.wantContent != nil {
				decoded, err := base64.StdEncoding.DecodeString(p.InlineBase64)
				require.NoError(t, err)
				assert.Equal(t, tt.wantContent, decoded)
			}
			assert.Equal(t, []string{"f"}, tc.ids, "every resolution touches last-accessed-at")
			assert.NotNil(t, rec.LastAccessedAt)
		})
	}
}

func TestResolveExportsWithMappedType(t *testing.T) {
	adapter := &fakeAdapter{typ: provider.Drive, exported: []byte("%PDF")}
	r, _ := newResolver(t, adapter)

	rec := models.FileRecord{ID: "f", Name: "Form", MIMEType: "application/vnd.google-apps.form"}
	p, err := r.Resolve(context.Background(), account(provider.Drive), &rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"application/pdf"}, adapter.exports)
	assert.Equal(t, KindPDF, p.Kind)
	assert.Zero(t, adapter.downloads)
}

func TestResolveSkipsDownloadForLargeDeclaredSize(t *testing.T) {
	adapter := &fakeAdapter{typ: provider.Dropbox, link: "https://dl.example.com/x"}
	r, _ := newResolver(t, adapter)

	rec := models.FileRecord{ID: "f", Name: "huge.txt", MIMEType: "text/plain", Size: InlineLimit + 1}
	_, err := r.Resolve(context.Background(), account(provider.Dropbox), &rec)
	require.NoError(t, err)
	assert.Zero(t, adapter.downloads)
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"image/JPEG":      KindImage,
		"application/pdf": KindPDF,
		"text/markdown":   KindText,
		"application/xml": KindText,
		"application/zip": KindBinary,
		"":                KindBinary,
	}
	for in, want := range tests {
		if got := KindOf(in); got != want {
			t.Errorf("KindOf(%q) = %s, want %s", in, got, want)
		}
	}
}
