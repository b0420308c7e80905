// Package provider defines the capability contract shared by every cloud
// storage backend, together with the normalized value types, the error
// taxonomy and the static export table.
//
// Adapters never hold credentials: every call receives the bearer access
// token explicitly, so one adapter instance serves all accounts of its
// provider and is safe for concurrent use.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Type identifies one of the supported storage services.
type Type string

const (
	Drive   Type = "DRIVE"
	Graph   Type = "GRAPH"
	Dropbox Type = "DROPBOX"
)

// Types lists every supported provider in a stable order.
var Types = []Type{Drive, Graph, Dropbox}

// ParseType normalizes a user supplied provider name.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DRIVE", "GOOGLE", "GOOGLE_DRIVE":
		return Drive, nil
	case "GRAPH", "ONEDRIVE", "MICROSOFT":
		return Graph, nil
	case "DROPBOX":
		return Dropbox, nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrValidation, s)
}

// FolderMIME is the mime type reported for GRAPH and DROPBOX folders.
const FolderMIME = "folder"

// RemoteFile is the provider-neutral description of one file or folder as
// reported by the provider.
type RemoteFile struct {
	ID           string
	Name         string
	Path         string
	MIMEType     string
	Size         int64
	IsFolder     bool
	ParentID     string
	ThumbnailURL string
	WebViewURL   string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// Upload describes the content handed to UploadFile.
type Upload struct {
	Name     string
	MIMEType string
	FolderID string
	Content  []byte
}

// Quota is the normalized storage quota of an account, in bytes.
type Quota struct {
	Total int64
	Used  int64
}

// TokenSet is the result of a code exchange or refresh.
// ExpiresIn is zero when the provider did not report a lifetime.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Adapter is implemented once per provider against its wire protocol.
type Adapter interface {
	Type() Type

	ListFiles(ctx context.Context, accessToken string) ([]RemoteFile, error)
	UploadFile(ctx context.Context, accessToken string, in Upload) (*RemoteFile, error)
	DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error)
	DeleteFile(ctx context.Context, accessToken, fileID string) error
	RenameFile(ctx context.Context, accessToken, fileID, newName string) (*RemoteFile, error)

	// MoveFile returns ErrUnsupported for providers without path relocation.
	MoveFile(ctx context.Context, accessToken, fileID, newPath string) (*RemoteFile, error)
	CreateFolder(ctx context.Context, accessToken, name, parentID string) (*RemoteFile, error)
	StorageQuota(ctx context.Context, accessToken string) (*Quota, error)

	// ExportFile converts a workspace-native document. DRIVE only.
	ExportFile(ctx context.Context, accessToken, fileID, mimeType string) ([]byte, error)

	// PreviewLink resolves a view URL for the file, either durable or ephemeral.
	PreviewLink(ctx context.Context, accessToken, fileID string) (string, error)

	UserEmail(ctx context.Context, accessToken string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
}

// Authorizer is implemented by adapters that can build an OAuth consent URL.
type Authorizer interface {
	AuthCodeURL(state string) string
}

// Registry selects the adapter for an account's provider.
type Registry struct {
	adapters map[Type]Adapter
}

// NewRegistry indexes the given adapters by their Type.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Type]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Type()] = a
	}
	return r
}

// For returns the adapter registered for t.
func (r *Registry) For(t Type) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, &Error{Op: "select adapter", Provider: t, Message: "provider not configured", Err: ErrUnsupported}
	}
	return a, nil
}
