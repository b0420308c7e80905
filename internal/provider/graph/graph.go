// Package graph implements the GRAPH adapter as a thin JSON client over the
// Microsoft Graph drive endpoints.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	// DefaultBaseURL is the Graph v1.0 root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// SimpleUploadLimit is the largest body accepted by a single PUT upload.
	SimpleUploadLimit = 4 << 20

	maxErrorBody = 64 << 10
)

// Scopes requested at consent time.
var Scopes = []string{"offline_access", "Files.ReadWrite.All", "User.Read"}

// Options configures the adapter.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant defaults to "common".
	Tenant     string
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Adapter implements provider.Adapter for OneDrive through Graph.
type Adapter struct {
	*provider.OAuthClient
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a GRAPH adapter.
func New(opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Tenant == "" {
		opts.Tenant = "common"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = provider.NewHTTPClient(provider.ClientOptions{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	endpoint := microsoft.AzureADEndpoint(opts.Tenant)
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
		OAuthClient: provider.NewOAuthClient(provider.Graph, cfg, opts.HTTPClient),
		baseURL:     opts.BaseURL,
		client:      opts.HTTPClient,
		logger:      opts.Logger.Named("graph"),
	}
}

func (a *Adapter) Type() provider.Type { return provider.Graph }

// driveItem is the subset of the Graph driveItem resource we read.
type driveItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	WebURL               string           `json:"webUrl"`
	CreatedDateTime      time.Time        `json:"createdDateTime"`
	LastModifiedDateTime time.Time        `json:"lastModifiedDateTime"`
	File                 *fileFacet       `json:"file,omitempty"`
	Folder               *folderFacet     `json:"folder,omitempty"`
	ParentReference      *parentReference `json:"parentReference,omitempty"`
	Thumbnails           []thumbnailSet   `json:"thumbnails,omitempty"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type parentReference struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type thumbnailSet struct {
	Medium *struct {
		URL string `json:"url"`
	} `json:"medium,omitempty"`
}

type listResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type driveResponse struct {
	Quota *struct {
		Total int64 `json:"total"`
		Used  int64 `json:"used"`
	} `json:"quota"`
}

type userResponse struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (d *driveItem) toRemote() provider.RemoteFile {
	rf := provider.RemoteFile{
		ID:         d.ID,
		Name:       d.Name,
		Size:       d.Size,
		WebViewURL: d.WebURL,
		CreatedAt:  d.CreatedDateTime,
		ModifiedAt: d.LastModifiedDateTime,
	}
	switch {
	case d.Folder != nil:
		rf.IsFolder = true
		rf.MIMEType = provider.FolderMIME
	case d.File != nil:
		rf.MIMEType = d.File.MimeType
	}
	if d.ParentReference != nil {
		rf.ParentID = d.ParentReference.ID
		if d.ParentReference.Path != "" {
			rf.Path = d.ParentReference.Path + "/" + d.Name
		}
	}
	if len(d.Thumbnails) > 0 && d.Thumbnails[0].Medium != nil {
		rf.ThumbnailURL = d.Thumbnails[0].Medium.URL
	}
	return rf
}

// do sends one request. target is either a path relative to the base URL
// or an absolute nextLink. Non-2xx responses become classified errors.
func (a *Adapter) do(ctx context.Context, op, method, target, accessToken string, body io.Reader, contentType string) (*http.Response, error) {
	u := target
	if len(u) == 0 || u[0] == '/' {
		u = a.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, provider.Classify(op, provider.Graph, err)
	}
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}
	defer resp.Body.Close()
	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	a.logger.Debug("request failed",
		zap.String("op", op),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", resp.Header.Get("request-id")),
	)
	return nil, provider.StatusError(op, provider.Graph, resp.StatusCode, string(errBody))
}

func (a *Adapter) doJSON(ctx context.Context, op, method, target, accessToken string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("graph: encode %s: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := a.do(ctx, op, method, target, accessToken, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Classify(op, provider.Graph, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func itemPath(id string) string {
	return "/me/drive/items/" + url.PathEscape(id)
}

func (a *Adapter) ListFiles(ctx context.Context, accessToken string) ([]provider.RemoteFile, error) {
	var files []provider.RemoteFile
	next := "/me/drive/root/children?$expand=thumbnails"
	for next != "" {
		var page listResponse
		if err := a.doJSON(ctx, "list files", http.MethodGet, next, accessToken, nil, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			files = append(files, page.Value[i].toRemote())
		}
		next = page.NextLink
	}
	return files, nil
}

func (a *Adapter) UploadFile(ctx context.Context, accessToken string, in provider.Upload) (*provider.RemoteFile, error) {
	if len(in.Content) > SimpleUploadLimit {
		return nil, &provider.Error{Op: "upload file", Provider: provider.Graph, Message: "large file upload not supported", Err: provider.ErrValidation}
	}
	target := "/me/drive/root:/" + url.PathEscape(in.Name) + ":/content"
	if in.FolderID != "" {
		target = itemPath(in.FolderID) + ":/" + url.PathEscape(in.Name) + ":/content"
	}
	contentType := in.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := a.do(ctx, "upload file", http.MethodPut, target, accessToken, bytes.NewReader(in.Content), contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, provider.Classify("upload file", provider.Graph, fmt.Errorf("decode response: %w", err))
	}
	f := item.toRemote()
	return &f, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	resp, err := a.do(ctx, "download file", http.MethodGet, itemPath(fileID)+"/content", accessToken, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Classify("download file", provider.Graph, err)
	}
	return data, nil
}

func (a *Adapter) DeleteFile(ctx context.Context, accessToken, fileID string) error {
	return a.doJSON(ctx, "delete file", http.MethodDelete, itemPath(fileID), accessToken, nil, nil)
}

func (a *Adapter) RenameFile(ctx context.Context, accessToken, fileID, newName string) (*provider.RemoteFile, error) {
	var item driveItem
	if err := a.doJSON(ctx, "rename file", http.MethodPatch, itemPath(fileID), accessToken, map[string]string{"name": newName}, &item); err != nil {
		return nil, err
	}
	f := item.toRemote()
	return &f, nil
}

func (a *Adapter) MoveFile(ctx context.Context, accessToken, fileID, newPath string) (*provider.RemoteFile, error) {
	return nil, &provider.Error{Op: "move file", Provider: provider.Graph, Message: "move is not supported", Err: provider.ErrUnsupported}
}

func (a *Adapter) CreateFolder(ctx context.Context, accessToken, name, parentID string) (*provider.RemoteFile, error) {
	target := "/me/drive/root/children"
	if parentID != "" {
		target = itemPath(parentID) + "/children"
	}
	in := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	var item driveItem
	if err := a.doJSON(ctx, "create folder", http.MethodPost, target, accessToken, in, &item); err != nil {
		return nil, err
	}
	f := item.toRemote()
	return &f, nil
}

func (a *Adapter) StorageQuota(ctx context.Context, accessToken string) (*provider.Quota, error) {
	var d driveResponse
	if err := a.doJSON(ctx, "storage quota", http.MethodGet, "/me/drive", accessToken, nil, &d); err != nil {
		return nil, err
	}
	if d.Quota == nil {
		return &provider.Quota{}, nil
	}
	return &provider.Quota{Total: d.Quota.Total, Used: d.Quota.Used}, nil
}

func (a *Adapter) ExportFile(ctx context.Context, accessToken, fileID, mimeType string) ([]byte, error) {
	return nil, &provider.Error{Op: "export file", Provider: provider.Graph, Message: "export is only available for workspace documents", Err: provider.ErrUnsupported}
}

// PreviewLink resolves the item's webUrl.
func (a *Adapter) PreviewLink(ctx context.Context, accessToken, fileID string) (string, error) {
	var item driveItem
	if err := a.doJSON(ctx, "preview link", http.MethodGet, itemPath(fileID)+"?$select=id,webUrl", accessToken, nil, &item); err != nil {
		return "", err
	}
	if item.WebURL == "" {
		return "", &provider.Error{Op: "preview link", Provider: provider.Graph, Message: "item has no web url", Err: provider.ErrUnsupported}
	}
	return item.WebURL, nil
}

// UserEmail prefers mail and falls back to userPrincipalName, which is
// the only address personal accounts report.
func (a *Adapter) UserEmail(ctx context.Context, accessToken string) (string, error) {
	var u userResponse
	if err := a.doJSON(ctx, "user email", http.MethodGet, "/me?$select=mail,userPrincipalName", accessToken, nil, &u); err != nil {
		return "", err
	}
	if u.Mail != "" {
		return u.Mail, nil
	}
	if u.UserPrincipalName != "" {
		return u.UserPrincipalName, nil
	}
	return "", &provider.Error{Op: "user email", Provider: provider.Graph, Message: "account has no email address", Err: provider.ErrProvider}
}
