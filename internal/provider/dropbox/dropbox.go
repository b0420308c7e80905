// Package dropbox implements the DROPBOX adapter on the Dropbox SDK.
//
// Dropbox addresses content by path, so file ids handed out by this
// adapter are lowercase paths. Renames and moves therefore change the id.
package dropbox

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// FilesClient is the slice of the SDK files API the adapter uses.
// files.Client satisfies it.
type FilesClient interface {
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error)
	MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error)
	GetTemporaryLink(arg *files.GetTemporaryLinkArg) (*files.GetTemporaryLinkResult, error)
}

// UsersClient is the slice of the SDK users API the adapter uses.
type UsersClient interface {
	GetCurrentAccount() (*users.FullAccount, error)
	GetSpaceUsage() (*users.SpaceUsage, error)
}

// Options configures the adapter.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
	HTTPClient   *http.Client
}

// Adapter implements provider.Adapter for Dropbox.
type Adapter struct {
	*provider.OAuthClient
	client   *http.Client
	newFiles func(cfg sdk.Config) FilesClient
	newUsers func(cfg sdk.Config) UsersClient
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a DROPBOX adapter backed by the real SDK.
func New(opts Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient(provider.ClientOptions{})
	}
	endpoint := endpoints.Dropbox
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Endpoint:     endpoint,
	}
	return &Adapter{
		OAuthClient: provider.NewOAuthClient(provider.Dropbox, cfg, client),
		client:      client,
		newFiles:    func(c sdk.Config) FilesClient { return files.New(c) },
		newUsers:    func(c sdk.Config) UsersClient { return users.New(c) },
	}
}

func (a *Adapter) Type() provider.Type { return provider.Dropbox }

// ctxTransport binds a request context, which the SDK does not accept
// per call.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (a *Adapter) config(ctx context.Context, accessToken string) sdk.Config {
	base := a.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	// The SDK only attaches Token when it builds its own client, so the
	// bearer header is added here.
	return sdk.Config{
		Token:    accessToken,
		LogLevel: sdk.LogOff,
		Client: &http.Client{
			Timeout: a.client.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
				Base:   &ctxTransport{ctx: ctx, base: base},
			},
		},
	}
}

func (a *Adapter) filesClient(ctx context.Context, accessToken string) FilesClient {
	return a.newFiles(a.config(ctx, accessToken))
}

func (a *Adapter) usersClient(ctx context.Context, accessToken string) UsersClient {
	return a.newUsers(a.config(ctx, accessToken))
}

func (a *Adapter) ListFiles(ctx context.Context, accessToken string) ([]provider.RemoteFile, error) {
	fc := a.filesClient(ctx, accessToken)
	res, err := fc.ListFolder(files.NewListFolderArg(""))
	if err != nil {
		return nil, classify("list files", err)
	}
	var out []provider.RemoteFile
	for {
		for _, e := range res.Entries {
			if rf, ok := toRemote(e); ok {
				out = append(out, rf)
			}
		}
		if !res.HasMore {
			return out, nil
		}
		res, err = fc.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, classify("list files", err)
		}
	}
}

func (a *Adapter) UploadFile(ctx context.Context, accessToken string, in provider.Upload) (*provider.RemoteFile, error) {
	arg := files.NewUploadArg(join(in.FolderID, in.Name))
	arg.Autorename = true
	meta, err := a.filesClient(ctx, accessToken).Upload(arg, bytes.NewReader(in.Content))
	if err != nil {
		return nil, classify("upload file", err)
	}
	rf, _ := toRemote(meta)
	if in.MIMEType != "" {
		rf.MIMEType = in.MIMEType
	}
	return &rf, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	_, body, err := a.filesClient(ctx, accessToken).Download(files.NewDownloadArg(fileID))
	if err != nil {
		return nil, classify("download file", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classify("download file", err)
	}
	return data, nil
}

func (a *Adapter) DeleteFile(ctx context.Context, accessToken, fileID string) error {
	if _, err := a.filesClient(ctx, accessToken).DeleteV2(files.NewDeleteArg(fileID)); err != nil {
		return classify("delete file", err)
	}
	return nil
}

// RenameFile moves the entry to a sibling path; the returned id is the
// new lowercase path.
func (a *Adapter) RenameFile(ctx context.Context, accessToken, fileID, newName string) (*provider.RemoteFile, error) {
	return a.relocate(ctx, "rename file", accessToken, fileID, join(parentOf(fileID), newName))
}

func (a *Adapter) MoveFile(ctx context.Context, accessToken, fileID, newPath string) (*provider.RemoteFile, error) {
	if !strings.HasPrefix(newPath, "/") {
		newPath = "/" + newPath
	}
	return a.relocate(ctx, "move file", accessToken, fileID, newPath)
}

func (a *Adapter) relocate(ctx context.Context, op, accessToken, from, to string) (*provider.RemoteFile, error) {
	res, err := a.filesClient(ctx, accessToken).MoveV2(files.NewRelocationArg(from, to))
	if err != nil {
		return nil, classify(op, err)
	}
	rf, ok := toRemote(res.Metadata)
	if !ok {
		return nil, &provider.Error{Op: op, Provider: provider.Dropbox, Message: "unexpected metadata in move result", Err: provider.ErrProvider}
	}
	return &rf, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, accessToken, name, parentID string) (*provider.RemoteFile, error) {
	arg := files.NewCreateFolderArg(join(parentID, name))
	arg.Autorename = true
	res, err := a.filesClient(ctx, accessToken).CreateFolderV2(arg)
	if err != nil {
		return nil, classify("create folder", err)
	}
	rf, _ := toRemote(res.Metadata)
	return &rf, nil
}

func (a *Adapter) StorageQuota(ctx context.Context, accessToken string) (*provider.Quota, error) {
	usage, err := a.usersClient(ctx, accessToken).GetSpaceUsage()
	if err != nil {
		return nil, classify("storage quota", err)
	}
	q := &provider.Quota{Used: int64(usage.Used)}
	if alloc := usage.Allocation; alloc != nil {
		switch alloc.Tag {
		case users.SpaceAllocationIndividual:
			if alloc.Individual != nil {
				q.Total = int64(alloc.Individual.Allocated)
			}
		case users.SpaceAllocationTeam:
			if alloc.Team != nil {
				q.Total = int64(alloc.Team.Allocated)
			}
		}
	}
	return q, nil
}

func (a *Adapter) ExportFile(ctx context.Context, accessToken, fileID, mimeType string) ([]byte, error) {
	return nil, &provider.Error{Op: "export file", Provider: provider.Dropbox, Message: "export is only available for workspace documents", Err: provider.ErrUnsupported}
}

// PreviewLink returns a temporary link, valid for four hours.
func (a *Adapter) PreviewLink(ctx context.Context, accessToken, fileID string) (string, error) {
	res, err := a.filesClient(ctx, accessToken).GetTemporaryLink(files.NewGetTemporaryLinkArg(fileID))
	if err != nil {
		return "", classify("preview link", err)
	}
	return res.Link, nil
}

func (a *Adapter) UserEmail(ctx context.Context, accessToken string) (string, error) {
	acct, err := a.usersClient(ctx, accessToken).GetCurrentAccount()
	if err != nil {
		return "", classify("user email", err)
	}
	return acct.Email, nil
}

func toRemote(m files.IsMetadata) (provider.RemoteFile, bool) {
	switch e := m.(type) {
	case *files.FileMetadata:
		return provider.RemoteFile{
			ID:         e.PathLower,
			Name:       e.Name,
			Path:       e.PathDisplay,
			MIMEType:   mimeFor(e.Name),
			Size:       int64(e.Size),
			ParentID:   parentOf(e.PathLower),
			CreatedAt:  e.ClientModified,
			ModifiedAt: e.ServerModified,
		}, true
	case *files.FolderMetadata:
		return provider.RemoteFile{
			ID:       e.PathLower,
			Name:     e.Name,
			Path:     e.PathDisplay,
			MIMEType: provider.FolderMIME,
			IsFolder: true,
			ParentID: parentOf(e.PathLower),
		}, true
	}
	return provider.RemoteFile{}, false
}

// mimeFor guesses a content type from the extension; Dropbox does not
// report one.
func mimeFor(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// parentOf returns the lowercase parent path, or "" for root entries.
func parentOf(p string) string {
	dir := path.Dir(strings.ToLower(p))
	if dir == "/" || dir == "." {
		return ""
	}
	return dir
}

func join(parent, name string) string {
	parent = strings.TrimSuffix(parent, "/")
	return parent + "/" + name
}

func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not_found"):
		return &provider.Error{Op: op, Provider: provider.Dropbox, Err: provider.ErrNotFound, Cause: err}
	case strings.Contains(msg, "malformed_path"), strings.Contains(msg, "disallowed_name"):
		return &provider.Error{Op: op, Provider: provider.Dropbox, Err: provider.ErrValidation, Cause: err}
	case strings.Contains(msg, "too_many_requests"), strings.Contains(msg, "too_many_write_operations"):
		return &provider.Error{Op: op, Provider: provider.Dropbox, Err: provider.ErrTransientNetwork, Cause: err}
	}
	return provider.Classify(op, provider.Dropbox, err)
}
