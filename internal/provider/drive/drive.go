// Package drive implements the DRIVE adapter on top of the Drive v3 API.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	pageSize   = 100
	fileFields = "id, name, mimeType, size, parents, thumbnailLink, webViewLink, createdTime, modifiedTime"
	previewURL = "https://drive.google.com/file/d/%s/preview"
)

// Scopes requested at consent time.
var Scopes = []string{
	drive.DriveScope,
	"https://www.googleapis.com/auth/userinfo.email",
}

// Options configures the adapter.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
	// TokenURL overrides the OAuth token endpoint (tests).
	TokenURL   string
	HTTPClient *http.Client
}

// Adapter talks to Drive with a per-call bearer token.
type Adapter struct {
	*provider.OAuthClient
	baseURL string
	client  *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a DRIVE adapter.
func New(opts Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = provider.NewHTTPClient(provider.ClientOptions{})
	}
	endpoint := google.Endpoint
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
	return &Adapter{
		OAuthClient: provider.NewOAuthClient(provider.Drive, cfg, client),
		baseURL:     opts.BaseURL,
		client:      client,
	}
}

func (a *Adapter) Type() provider.Type { return provider.Drive }

// service builds a Drive client bound to one access token. Construction
// does no I/O.
func (a *Adapter) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	authed := &http.Client{
		Timeout: a.client.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   a.client.Transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(authed)}
	if a.baseURL != "" {
		opts = append(opts, option.WithEndpoint(a.baseURL))
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}
	return srv, nil
}

func (a *Adapter) ListFiles(ctx context.Context, accessToken string) ([]provider.RemoteFile, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	var files []provider.RemoteFile
	pageToken := ""
	for {
		call := srv.Files.List().
			Q("trashed = false").
			PageSize(pageSize).
			Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		r, err := call.Do()
		if err != nil {
			return nil, classify("list files", err)
		}
		for _, f := range r.Files {
			files = append(files, toRemote(f))
		}
		if r.NextPageToken == "" {
			return files, nil
		}
		pageToken = r.NextPageToken
	}
}

func (a *Adapter) UploadFile(ctx context.Context, accessToken string, in provider.Upload) (*provider.RemoteFile, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	meta := &drive.File{Name: in.Name, MimeType: in.MIMEType}
	if in.FolderID != "" {
		meta.Parents = []string{in.FolderID}
	}
	res, err := srv.Files.Create(meta).
		Media(bytes.NewReader(in.Content), googleapi.ContentType(in.MIMEType)).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("upload file", err)
	}
	f := toRemote(res)
	return &f, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, classify("download file", err)
	}
	return readBody("download file", resp)
}

func (a *Adapter) ExportFile(ctx context.Context, accessToken, fileID, mimeType string) ([]byte, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, classify("export file", err)
	}
	return readBody("export file", resp)
}

func (a *Adapter) DeleteFile(ctx context.Context, accessToken, fileID string) error {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := srv.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return classify("delete file", err)
	}
	return nil
}

func (a *Adapter) RenameFile(ctx context.Context, accessToken, fileID, newName string) (*provider.RemoteFile, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	res, err := srv.Files.Update(fileID, &drive.File{Name: newName}).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("rename file", err)
	}
	f := toRemote(res)
	return &f, nil
}

// MoveFile is not offered for DRIVE; files are addressed by id, not path.
func (a *Adapter) MoveFile(ctx context.Context, accessToken, fileID, newPath string) (*provider.RemoteFile, error) {
	return nil, &provider.Error{Op: "move file", Provider: provider.Drive, Message: "move is not supported", Err: provider.ErrUnsupported}
}

func (a *Adapter) CreateFolder(ctx context.Context, accessToken, name, parentID string) (*provider.RemoteFile, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	meta := &drive.File{Name: name, MimeType: provider.WorkspaceFolderMIME}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	res, err := srv.Files.Create(meta).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("create folder", err)
	}
	f := toRemote(res)
	return &f, nil
}

func (a *Adapter) StorageQuota(ctx context.Context, accessToken string) (*provider.Quota, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	about, err := srv.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		return nil, classify("storage quota", err)
	}
	if about.StorageQuota == nil {
		return &provider.Quota{}, nil
	}
	return &provider.Quota{Total: about.StorageQuota.Limit, Used: about.StorageQuota.Usage}, nil
}

// PreviewLink returns the embeddable preview page; no API call is needed.
func (a *Adapter) PreviewLink(ctx context.Context, accessToken, fileID string) (string, error) {
	return fmt.Sprintf(previewURL, fileID), nil
}

func (a *Adapter) UserEmail(ctx context.Context, accessToken string) (string, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return "", err
	}
	about, err := srv.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return "", classify("user email", err)
	}
	if about.User == nil || about.User.EmailAddress == "" {
		return "", &provider.Error{Op: "user email", Provider: provider.Drive, Message: "account has no email address", Err: provider.ErrProvider}
	}
	return about.User.EmailAddress, nil
}

func toRemote(f *drive.File) provider.RemoteFile {
	rf := provider.RemoteFile{
		ID:           f.Id,
		Name:         f.Name,
		MIMEType:     f.MimeType,
		Size:         f.Size,
		IsFolder:     f.MimeType == provider.WorkspaceFolderMIME,
		ThumbnailURL: f.ThumbnailLink,
		WebViewURL:   f.WebViewLink,
		CreatedAt:    parseTime(f.CreatedTime),
		ModifiedAt:   parseTime(f.ModifiedTime),
	}
	if len(f.Parents) > 0 {
		rf.ParentID = f.Parents[0]
	}
	return rf
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func readBody(op string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Classify(op, provider.Drive, err)
	}
	return data, nil
}

// classify maps googleapi errors. Drive reports quota and rate limits as
// 403, so reasons are inspected before the status code.
func classify(op string, err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return provider.Classify(op, provider.Drive, err)
	}
	for _, item := range gErr.Errors {
		switch item.Reason {
		case "storageQuotaExceeded", "quotaExceeded":
			return &provider.Error{Op: op, Provider: provider.Drive, StatusCode: gErr.Code, Message: gErr.Message, Err: provider.ErrQuotaExceeded, Cause: err}
		case "rateLimitExceeded", "userRateLimitExceeded":
			return &provider.Error{Op: op, Provider: provider.Drive, StatusCode: gErr.Code, Message: gErr.Message, Err: provider.ErrTransientNetwork, Cause: err}
		}
	}
	msg := gErr.Message
	if msg == "" {
		msg = strings.TrimSpace(gErr.Body)
	}
	return provider.StatusError(op, provider.Drive, gErr.Code, msg)
}
