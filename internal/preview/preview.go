// Package preview decides how a cached file is shown to the user: inline
// bytes, a converted export, or a link that opens in a new tab.
package preview

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
)

// InlineLimit is the largest payload returned inline.
const InlineLimit = 6 << 20

// Mode is how the client should render the preview.
type Mode string

const (
	ModeInline       Mode = "INLINE"
	ModeExternalLink Mode = "EXTERNAL_LINK"
	ModeUnsupported  Mode = "UNSUPPORTED"
)

// Kind tells the client which renderer to use for inline content.
type Kind string

const (
	KindImage  Kind = "IMAGE"
	KindPDF    Kind = "PDF"
	KindText   Kind = "TEXT"
	KindBinary Kind = "BINARY"
)

// simpleText lists non text/* types that still render as text.
var simpleText = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"text/csv":               true,
	"text/html":              true,
	"text/xml":               true,
}

// Preview is the resolved presentation of one file.
type Preview struct {
	FileID       string        `json:"file_id"`
	Name         string        `json:"name"`
	Provider     provider.Type `json:"provider"`
	MIMEType     string        `json:"mime_type"`
	Size         int64         `json:"size"`
	ThumbnailURL string        `json:"thumbnail_url,omitempty"`
	Available    bool          `json:"available"`
	Mode         Mode          `json:"mode"`
	Kind         Kind          `json:"kind,omitempty"`
	ContentType  string        `json:"content_type,omitempty"`
	InlineBase64 string        `json:"content,omitempty"`
	URL          string        `json:"url,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// FileToucher records that a file was looked at.
type FileToucher interface {
	Touch(ctx context.Context, rec *models.FileRecord, at time.Time) error
}

// Resolver picks the preview strategy for a file record.
type Resolver struct {
	tokens   *token.Manager
	registry *provider.Registry
	files    FileToucher
	logger   *zap.Logger
	now      func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(tokens *token.Manager, registry *provider.Registry, files FileToucher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		tokens:   tokens,
		registry: registry,
		files:    files,
		logger:   logger.Named("preview"),
		now:      time.Now,
	}
}

// Resolve builds the preview for rec, which must belong to acc.
func (r *Resolver) Resolve(ctx context.Context, acc *models.Account, rec *models.FileRecord) (*Preview, error) {
	p, err := r.resolve(ctx, acc, rec)
	if err != nil {
		return nil, err
	}
	if err := r.files.Touch(ctx, rec, r.now().UTC()); err != nil {
		logging.FromContext(ctx, r.logger).Warn("Failed to record file access", zap.String("file_id", rec.ID), zap.Error(err))
	}
	return p, nil
}

func (r *Resolver) resolve(ctx context.Context, acc *models.Account, rec *models.FileRecord) (*Preview, error) {
	log := logging.FromContext(ctx, r.logger).With(zap.String("file_id", rec.ID), zap.String("provider", string(acc.Provider)))
	p := &Preview{
		FileID:       rec.ID,
		Name:         rec.Name,
		Provider:     acc.Provider,
		MIMEType:     rec.MIMEType,
		Size:         rec.Size,
		ThumbnailURL: rec.ThumbnailURL,
	}

	if rec.IsFolder {
		return p.unsupported("Folders cannot be previewed"), nil
	}

	adapter, err := r.registry.For(acc.Provider)
	if err != nil {
		return nil, err
	}

	if acc.Provider == provider.Drive && provider.IsWorkspaceNative(rec.MIMEType) {
		profile := provider.ExportFor(rec.MIMEType)
		data, err := token.Execute(ctx, r.tokens, acc, func(ctx context.Context, accessToken string) ([]byte, error) {
			return adapter.ExportFile(ctx, accessToken, rec.ProviderFileID, profile.MIMEType)
		})
		if err != nil {
			log.Warn("Export for preview failed, falling back to link", zap.Error(err))
			if url, lerr := r.link(ctx, adapter, acc, rec); lerr == nil {
				return p.external(url, "Preview is not available inline. Please open in a new tab."), nil
			}
			return p.unsupported("Preview is not available for this document."), nil
		}
		if len(data) > InlineLimit {
			url, err := r.link(ctx, adapter, acc, rec)
			if err != nil {
				return nil, err
			}
			return p.external(url, "Document is too large to preview inline. Open in a new tab."), nil
		}
		return p.inline(data, profile.MIMEType), nil
	}

	if inlineCandidate(rec) {
		data, err := token.Execute(ctx, r.tokens, acc, func(ctx context.Context, accessToken string) ([]byte, error) {
			return adapter.DownloadFile(ctx, accessToken, rec.ProviderFileID)
		})
		if err != nil {
			log.Warn("Download for preview failed, falling back to link", zap.Error(err))
			if url, lerr := r.link(ctx, adapter, acc, rec); lerr == nil {
				return p.external(url, "Preview is not available inline. Please open in a new tab."), nil
			}
			return nil, err
		}
		if len(data) <= InlineLimit {
			contentType := rec.MIMEType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			return p.inline(data, contentType), nil
		}
	}

	url, err := r.link(ctx, adapter, acc, rec)
	if err != nil {
		if provider.IsUnsupported(err) {
			return p.unsupported("Preview is not supported for this file type."), nil
		}
		return nil, err
	}
	if url == "" {
		return p.unsupported("Preview is not supported for this file type."), nil
	}
	return p.external(url, "Preview will open in a new browser tab."), nil
}

// link prefers the stored web view URL and asks the provider otherwise.
func (r *Resolver) link(ctx context.Context, adapter provider.Adapter, acc *models.Account, rec *models.FileRecord) (string, error) {
	if rec.WebViewURL != "" {
		return rec.WebViewURL, nil
	}
	return token.Execute(ctx, r.tokens, acc, func(ctx context.Context, accessToken string) (string, error) {
		return adapter.PreviewLink(ctx, accessToken, rec.ProviderFileID)
	})
}

func inlineCandidate(rec *models.FileRecord) bool {
	if rec.MIMEType == "" || rec.Size > InlineLimit {
		return false
	}
	mime := strings.ToLower(rec.MIMEType)
	return strings.HasPrefix(mime, "image/") ||
		strings.HasPrefix(mime, "text/") ||
		mime == "application/pdf" ||
		simpleText[mime]
}

// KindOf maps a content type to the renderer used for it.
func KindOf(contentType string) Kind {
	mime := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case mime == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mime, "text/"), simpleText[mime]:
		return KindText
	}
	return KindBinary
}

func (p *Preview) inline(data []byte, contentType string) *Preview {
	if len(data) == 0 {
		return p.unsupported("Preview is not available for this file.")
	}
	p.Available = true
	p.Mode = ModeInline
	p.Kind = KindOf(contentType)
	p.ContentType = contentType
	p.InlineBase64 = base64.StdEncoding.EncodeToString(data)
	return p
}

func (p *Preview) external(url, msg string) *Preview {
	p.Mode = ModeExternalLink
	p.URL = url
	p.Message = msg
	return p
}

func (p *Preview) unsupported(msg string) *Preview {
	p.Mode = ModeUnsupported
	p.Message = msg
	return p
}
