package gateway

import (
	"context"
	"strings"

	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
)

// Copy materializes a file from its account and uploads it to the target
// account, which may belong to another provider. Both the source file and
// the target account must belong to userID.
func (g *Gateway) Copy(ctx context.Context, fileID, targetAccountID, targetFolderID, userID string) (*models.FileRecord, error) {
	const op = "copy file"

	rec, err := g.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, denied(op, "you do not have permission to copy this file")
	}
	if rec.IsFolder {
		return nil, &provider.Error{Op: op, Message: "copying folders is not supported", Err: provider.ErrUnsupported}
	}

	target, err := g.accounts.Get(ctx, targetAccountID)
	if err != nil {
		return nil, err
	}
	if target.UserID != userID {
		return nil, denied(op, "target account is not linked to the current user")
	}

	source, sourceAdapter, err := g.activeAccount(ctx, op, rec.AccountID)
	if err != nil {
		return nil, err
	}
	target, targetAdapter, err := g.activeAccount(ctx, op, targetAccountID)
	if err != nil {
		return nil, err
	}

	log := g.log(ctx).With(
		zap.String("file_id", rec.ID),
		zap.String("source", string(source.Provider)),
		zap.String("target", string(target.Provider)),
	)

	out, err := g.copy(ctx, op, source, sourceAdapter, rec, target, targetAdapter, strings.TrimSpace(targetFolderID))
	g.record(ctx, models.ActivityLog{
		UserID: userID, AccountID: target.ID, FileID: rec.ID, Type: models.ActivityCopy,
		Message: rec.Name + " -> " + string(target.Provider) + " " + target.Email,
	}, err)
	if err != nil {
		log.Warn("Copy failed", zap.Error(err))
		return nil, wrap(op, err)
	}
	log.Info("Copied file", zap.String("new_file_id", out.ID), zap.String("name", out.Name))

	g.syncQuota(ctx, target)
	return out, nil
}

func (g *Gateway) copy(ctx context.Context, op string, source *models.Account, sourceAdapter provider.Adapter, rec *models.FileRecord,
	target *models.Account, targetAdapter provider.Adapter, folderID string) (*models.FileRecord, error) {
	content, err := g.materialize(ctx, source, sourceAdapter, rec)
	if err != nil {
		return nil, err
	}
	if len(content.Content) == 0 {
		return nil, validation(op, "source file returned no data")
	}

	upload := provider.Upload{
		Name:     content.Name,
		MIMEType: content.MIMEType,
		FolderID: folderID,
		Content:  content.Content,
	}
	rf, err := token.Execute(ctx, g.tokens, target, func(ctx context.Context, accessToken string) (*provider.RemoteFile, error) {
		return targetAdapter.UploadFile(ctx, accessToken, upload)
	})
	if err != nil {
		return nil, err
	}
	return g.files.Upsert(ctx, target, *rf)
}
