package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/preview"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
)

// Listing is the result of ListFiles. Stale is set when the provider could
// not be reached and the cached records were returned instead.
type Listing struct {
	Files    []models.FileRecord `json:"files"`
	Stale    bool                `json:"stale"`
	SyncedAt *time.Time          `json:"synced_at,omitempty"`
	Warning  string              `json:"warning,omitempty"`
}

// Download is the materialized content of a file.
type Download struct {
	Name     string
	MIMEType string
	Content  []byte
}

// BatchResult reports a non-transactional batch operation per file.
type BatchResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// ListFiles fetches the live listing, reconciles it into the cache and
// records quota. When the provider fails, cached records are returned with
// Stale set; with nothing cached the provider error is returned.
func (g *Gateway) ListFiles(ctx context.Context, accountID string) (*Listing, error) {
	const op = "list files"
	acc, adapter, err := g.activeAccount(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	log := g.log(ctx).With(zap.String("account_id", acc.ID), zap.String("provider", string(acc.Provider)))

	remote, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) ([]provider.RemoteFile, error) {
		return adapter.ListFiles(ctx, accessToken)
	})
	if err != nil {
		cached, cerr := g.files.ListByAccount(ctx, acc.ID)
		if cerr != nil || len(cached) == 0 {
			return nil, wrap(op, err)
		}
		log.Warn("Live listing failed, returning cached metadata", zap.Int("cached", len(cached)), zap.Error(err))
		return &Listing{Files: cached, Stale: true, SyncedAt: acc.LastSyncedAt, Warning: err.Error()}, nil
	}

	recs, err := g.files.UpsertAll(ctx, acc, remote)
	if err != nil {
		return nil, wrap(op, err)
	}
	log.Info("Listed files", zap.Int("count", len(recs)))

	g.syncQuota(ctx, acc)
	return &Listing{Files: recs, SyncedAt: acc.LastSyncedAt}, nil
}

// Upload stores content in the account and caches the new file.
func (g *Gateway) Upload(ctx context.Context, accountID string, in provider.Upload) (*models.FileRecord, error) {
	const op = "upload file"
	if len(in.Content) == 0 {
		return nil, validation(op, "file cannot be empty")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, validation(op, "file name is required")
	}
	if in.MIMEType == "" {
		in.MIMEType = "application/octet-stream"
	}
	in.FolderID = strings.TrimSpace(in.FolderID)

	acc, adapter, err := g.activeAccount(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	start := g.now()
	rf, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (*provider.RemoteFile, error) {
		return adapter.UploadFile(ctx, accessToken, in)
	})
	var rec *models.FileRecord
	if err == nil {
		rec, err = g.files.Upsert(ctx, acc, *rf)
	}
	g.record(ctx, models.ActivityLog{
		UserID: acc.UserID, AccountID: acc.ID, FileID: recID(rec), Type: models.ActivityUpload,
		Duration: g.now().Sub(start).Milliseconds(),
	}, err)
	if err != nil {
		return nil, wrap(op, err)
	}
	g.log(ctx).Info("Uploaded file", zap.String("file_id", rec.ID), zap.String("name", rec.Name), zap.Int("bytes", len(in.Content)))

	g.syncQuota(ctx, acc)
	return rec, nil
}

// Download returns the file content. DRIVE workspace documents are
// exported and named with the export extension.
func (g *Gateway) Download(ctx context.Context, fileID string) (*Download, error) {
	const op = "download file"
	rec, acc, adapter, err := g.fileAccount(ctx, op, fileID)
	if err != nil {
		return nil, err
	}
	if rec.IsFolder {
		return nil, &provider.Error{Op: op, Provider: acc.Provider, Message: "folders cannot be downloaded", Err: provider.ErrUnsupported}
	}

	start := g.now()
	out, err := g.materialize(ctx, acc, adapter, rec)
	g.record(ctx, models.ActivityLog{
		UserID: acc.UserID, AccountID: acc.ID, FileID: rec.ID, Type: models.ActivityDownload,
		Duration: g.now().Sub(start).Milliseconds(),
	}, err)
	if err != nil {
		return nil, wrap(op, err)
	}
	if err := g.files.Touch(ctx, rec, g.now().UTC()); err != nil {
		g.log(ctx).Warn("Failed to record file access", zap.String("file_id", rec.ID), zap.Error(err))
	}
	return out, nil
}

// materialize fetches the bytes of rec, exporting workspace documents.
func (g *Gateway) materialize(ctx context.Context, acc *models.Account, adapter provider.Adapter, rec *models.FileRecord) (*Download, error) {
	if acc.Provider == provider.Drive && provider.IsWorkspaceNative(rec.MIMEType) {
		profile := provider.ExportFor(rec.MIMEType)
		data, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) ([]byte, error) {
			return adapter.ExportFile(ctx, accessToken, rec.ProviderFileID, profile.MIMEType)
		})
		if err != nil {
			return nil, err
		}
		return &Download{Name: provider.EnsureExtension(rec.Name, profile.Extension), MIMEType: profile.MIMEType, Content: data}, nil
	}

	data, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) ([]byte, error) {
		return adapter.DownloadFile(ctx, accessToken, rec.ProviderFileID)
	})
	if err != nil {
		return nil, err
	}
	name := rec.Name
	if strings.TrimSpace(name) == "" {
		name = "copied-file"
	}
	mime := rec.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &Download{Name: name, MIMEType: mime, Content: data}, nil
}

// Preview resolves how the file should be shown.
func (g *Gateway) Preview(ctx context.Context, fileID string) (*preview.Preview, error) {
	const op = "preview file"
	rec, acc, _, err := g.fileAccount(ctx, op, fileID)
	if err != nil {
		return nil, err
	}
	p, err := g.previews.Resolve(ctx, acc, rec)
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, FileID: rec.ID, Type: models.ActivityView}, err)
	if err != nil {
		return nil, wrap(op, err)
	}
	return p, nil
}

// Delete removes the file at the provider and then from the cache. A file
// the provider no longer knows is dropped from the cache as well.
func (g *Gateway) Delete(ctx context.Context, fileID string) error {
	const op = "delete file"
	rec, acc, adapter, err := g.fileAccount(ctx, op, fileID)
	if err != nil {
		return err
	}
	_, err = token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (struct{}, error) {
		return struct{}{}, adapter.DeleteFile(ctx, accessToken, rec.ProviderFileID)
	})
	if provider.IsNotFound(err) {
		g.log(ctx).Info("File already gone at provider", zap.String("file_id", rec.ID))
		err = nil
	}
	if err == nil {
		err = g.files.Delete(ctx, rec.ID)
	}
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, FileID: rec.ID, Type: models.ActivityDelete, Message: rec.Name}, err)
	if err != nil {
		return wrap(op, err)
	}
	g.log(ctx).Info("Deleted file", zap.String("file_id", rec.ID), zap.String("name", rec.Name))

	g.syncQuota(ctx, acc)
	return nil
}

// BatchDelete deletes each file independently and reports per-file outcomes.
func (g *Gateway) BatchDelete(ctx context.Context, fileIDs []string) *BatchResult {
	res := &BatchResult{Succeeded: []string{}, Failed: map[string]string{}}
	for _, id := range fileIDs {
		if err := g.Delete(ctx, id); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	g.log(ctx).Info("Batch delete completed", zap.Int("succeeded", len(res.Succeeded)), zap.Int("failed", len(res.Failed)))
	return res
}

// Rename renames the file at the provider and updates the cache.
func (g *Gateway) Rename(ctx context.Context, fileID, newName string) (*models.FileRecord, error) {
	const op = "rename file"
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, validation(op, "new file name cannot be empty")
	}
	rec, acc, adapter, err := g.fileAccount(ctx, op, fileID)
	if err != nil {
		return nil, err
	}
	rf, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (*provider.RemoteFile, error) {
		return adapter.RenameFile(ctx, accessToken, rec.ProviderFileID, newName)
	})
	var out *models.FileRecord
	if err == nil {
		out, err = g.reconcile(ctx, acc, rec, *rf)
	}
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, FileID: rec.ID, Type: models.ActivityRename, Message: rec.Name + " -> " + newName}, err)
	if err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// Move relocates the file to newPath. Only providers with path-based
// addressing support it.
func (g *Gateway) Move(ctx context.Context, fileID, newPath string) (*models.FileRecord, error) {
	const op = "move file"
	newPath = strings.TrimSpace(newPath)
	if newPath == "" {
		return nil, validation(op, "new path cannot be empty")
	}
	rec, acc, adapter, err := g.fileAccount(ctx, op, fileID)
	if err != nil {
		return nil, err
	}
	rf, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (*provider.RemoteFile, error) {
		return adapter.MoveFile(ctx, accessToken, rec.ProviderFileID, newPath)
	})
	var out *models.FileRecord
	if err == nil {
		if rf.Path == "" {
			rf.Path = newPath
		}
		out, err = g.reconcile(ctx, acc, rec, *rf)
	}
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, FileID: rec.ID, Type: models.ActivityMove, Message: newPath}, err)
	if err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// reconcile writes a relocated file back, re-keying the record when the
// provider id changed.
func (g *Gateway) reconcile(ctx context.Context, acc *models.Account, rec *models.FileRecord, rf provider.RemoteFile) (*models.FileRecord, error) {
	if rf.ID != "" && rf.ID != rec.ProviderFileID {
		return g.files.ReplaceProviderID(ctx, acc, rec.ProviderFileID, rf)
	}
	rf.ID = rec.ProviderFileID
	return g.files.Upsert(ctx, acc, rf)
}

// CreateFolder creates a folder under parentID, or the root when empty.
func (g *Gateway) CreateFolder(ctx context.Context, accountID, name, parentID string) (*models.FileRecord, error) {
	const op = "create folder"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validation(op, "folder name cannot be empty")
	}
	parentID = strings.TrimSpace(parentID)
	acc, adapter, err := g.activeAccount(ctx, op, accountID)
	if err != nil {
		return nil, err
	}
	rf, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (*provider.RemoteFile, error) {
		return adapter.CreateFolder(ctx, accessToken, name, parentID)
	})
	var rec *models.FileRecord
	if err == nil {
		rec, err = g.files.Upsert(ctx, acc, *rf)
	}
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, FileID: recID(rec), Type: models.ActivityCreateFolder, Message: name}, err)
	if err != nil {
		return nil, wrap(op, err)
	}

	g.syncQuota(ctx, acc)
	return rec, nil
}

// ToggleStar flips the local starred flag.
func (g *Gateway) ToggleStar(ctx context.Context, fileID string) (*models.FileRecord, error) {
	rec, err := g.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := g.files.SetStarred(ctx, rec, !rec.Starred); err != nil {
		return nil, err
	}
	return rec, nil
}

func recID(rec *models.FileRecord) string {
	if rec == nil {
		return ""
	}
	return rec.ID
}
