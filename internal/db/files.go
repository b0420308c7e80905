package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"gorm.io/gorm"
)

// FileStore reconciles provider listings into cached file records.
type FileStore struct {
	db *gorm.DB
}

// NewFileStore wraps db.
func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

// SearchFilter narrows Search. Zero values mean "no constraint".
type SearchFilter struct {
	Name      string
	MIMEType  string
	AccountID string
	Starred   *bool
	MinSize   *int64
	MaxSize   *int64
	SortBy    string // name | size | modified
	SortDesc  bool
}

// Upsert writes one provider-confirmed file for acc.
func (s *FileStore) Upsert(ctx context.Context, acc *models.Account, rf provider.RemoteFile) (*models.FileRecord, error) {
	var out *models.FileRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = upsert(tx, acc, rf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert file %s: %w", rf.ID, err)
	}
	return out, nil
}

// UpsertAll reconciles a whole listing in one transaction.
func (s *FileStore) UpsertAll(ctx context.Context, acc *models.Account, files []provider.RemoteFile) ([]models.FileRecord, error) {
	out := make([]models.FileRecord, 0, len(files))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rf := range files {
			rec, err := upsert(tx, acc, rf)
			if err != nil {
				return fmt.Errorf("file %s: %w", rf.ID, err)
			}
			out = append(out, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile listing: %w", err)
	}
	return out, nil
}

// ReplaceProviderID re-keys the record known as oldID to the file's new
// provider id, for providers whose ids are paths. A record already stored
// under the new id is folded into the re-keyed one.
func (s *FileStore) ReplaceProviderID(ctx context.Context, acc *models.Account, oldID string, rf provider.RemoteFile) (*models.FileRecord, error) {
	var out *models.FileRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.FileRecord
		err := tx.Where("account_id = ? AND provider_file_id = ?", acc.ID, oldID).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out, err = upsert(tx, acc, rf)
			return err
		}
		if err != nil {
			return err
		}
		if oldID != rf.ID {
			if err := tx.Where("account_id = ? AND provider_file_id = ? AND id <> ?", acc.ID, rf.ID, rec.ID).
				Delete(&models.FileRecord{}).Error; err != nil {
				return err
			}
		}
		rec.ProviderFileID = rf.ID
		apply(&rec, rf)
		out = &rec
		return tx.Save(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("re-key file %s: %w", oldID, err)
	}
	return out, nil
}

func upsert(tx *gorm.DB, acc *models.Account, rf provider.RemoteFile) (*models.FileRecord, error) {
	var rec models.FileRecord
	err := tx.Where("account_id = ? AND provider_file_id = ?", acc.ID, rf.ID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = models.FileRecord{
			ID:             uuid.NewString(),
			UserID:         acc.UserID,
			AccountID:      acc.ID,
			ProviderFileID: rf.ID,
		}
		apply(&rec, rf)
		if err := tx.Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	case err != nil:
		return nil, err
	}
	apply(&rec, rf)
	if err := tx.Save(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// apply copies provider-reported fields. Starred, trashed and access time
// are local state and never overwritten.
func apply(rec *models.FileRecord, rf provider.RemoteFile) {
	rec.Name = rf.Name
	rec.Path = rf.Path
	rec.MIMEType = rf.MIMEType
	rec.Size = rf.Size
	rec.IsFolder = rf.IsFolder
	if rf.ThumbnailURL != "" {
		rec.ThumbnailURL = rf.ThumbnailURL
	}
	if rf.WebViewURL != "" {
		rec.WebViewURL = rf.WebViewURL
	}
	rec.ParentID = nil
	if rf.ParentID != "" {
		parent := rf.ParentID
		rec.ParentID = &parent
	}
	if !rf.ModifiedAt.IsZero() {
		modified := rf.ModifiedAt
		rec.ModifiedAt = &modified
	}
	if rec.CreatedAt == nil && !rf.CreatedAt.IsZero() {
		created := rf.CreatedAt
		rec.CreatedAt = &created
	}
}

// Get loads a record by its local id.
func (s *FileStore) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	var rec models.FileRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound("get file", "file "+id, err)
	}
	return &rec, nil
}

// ListByAccount returns the account's cached, non-trashed records by name.
func (s *FileStore) ListByAccount(ctx context.Context, accountID string) ([]models.FileRecord, error) {
	var recs []models.FileRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND trashed = ?", accountID, false).
		Order("name ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list cached files: %w", err)
	}
	return recs, nil
}

// Delete removes a record after the provider confirmed deletion.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.FileRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

// SetStarred flips the local starred flag.
func (s *FileStore) SetStarred(ctx context.Context, rec *models.FileRecord, starred bool) error {
	if err := s.db.WithContext(ctx).Model(rec).Update("starred", starred).Error; err != nil {
		return fmt.Errorf("star file: %w", err)
	}
	rec.Starred = starred
	return nil
}

// Touch stamps last-accessed-at.
func (s *FileStore) Touch(ctx context.Context, rec *models.FileRecord, at time.Time) error {
	if err := s.db.WithContext(ctx).Model(rec).UpdateColumn("last_accessed_at", &at).Error; err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	rec.LastAccessedAt = &at
	return nil
}

// Search queries the user's non-trashed records.
func (s *FileStore) Search(ctx context.Context, userID string, f SearchFilter) ([]models.FileRecord, error) {
	q := s.db.WithContext(ctx).Model(&models.FileRecord{}).
		Where("user_id = ? AND trashed = ?", userID, false)
	if f.Name != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, containsPattern(f.Name))
	}
	if f.MIMEType != "" {
		q = q.Where(`LOWER(mime_type) LIKE ? ESCAPE '\'`, containsPattern(f.MIMEType))
	}
	if f.AccountID != "" {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Starred != nil {
		q = q.Where("starred = ?", *f.Starred)
	}
	if f.MinSize != nil {
		q = q.Where("size >= ?", *f.MinSize)
	}
	if f.MaxSize != nil {
		q = q.Where("size <= ?", *f.MaxSize)
	}

	column := "name"
	switch f.SortBy {
	case "size":
		column = "size"
	case "modified":
		column = "modified_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	var recs []models.FileRecord
	if err := q.Order(column + " " + dir).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	return recs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive substring LIKE pattern in
// which the user's wildcards match literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// Stats aggregates the user's non-trashed records for analytics.
func (s *FileStore) Stats(ctx context.Context, userID string) (*models.FileStats, error) {
	db := s.db.WithContext(ctx)
	stats := &models.FileStats{
		ByCategory: map[string]int64{},
		ByProvider: map[string]int64{},
	}

	var totals struct {
		Files   int64
		Folders int64
		Size    int64
	}
	err := db.Model(&models.FileRecord{}).
		Select("COALESCE(SUM(CASE WHEN is_folder THEN 0 ELSE 1 END), 0) AS files, "+
			"COALESCE(SUM(CASE WHEN is_folder THEN 1 ELSE 0 END), 0) AS folders, "+
			"COALESCE(SUM(CASE WHEN is_folder THEN 0 ELSE size END), 0) AS size").
		Where("user_id = ? AND trashed = ?", userID, false).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("file totals: %w", err)
	}
	stats.TotalFiles, stats.TotalFolders, stats.TotalSize = totals.Files, totals.Folders, totals.Size

	var byMIME []struct {
		MIMEType string `gorm:"column:mime_type"`
		Count    int64
	}
	err = db.Model(&models.FileRecord{}).
		Select("mime_type, COUNT(*) AS count").
		Where("user_id = ? AND trashed = ? AND is_folder = ?", userID, false, false).
		Group("mime_type").
		Scan(&byMIME).Error
	if err != nil {
		return nil, fmt.Errorf("files by type: %w", err)
	}
	for _, row := range byMIME {
		stats.ByCategory[Category(row.MIMEType)] += row.Count
	}

	var byProvider []struct {
		Provider string
		Count    int64
	}
	err = db.Table("file_records").
		Select("accounts.provider AS provider, COUNT(*) AS count").
		Joins("JOIN accounts ON accounts.id = file_records.account_id").
		Where("file_records.user_id = ? AND file_records.trashed = ? AND file_records.is_folder = ?", userID, false, false).
		Group("accounts.provider").
		Scan(&byProvider).Error
	if err != nil {
		return nil, fmt.Errorf("files by provider: %w", err)
	}
	for _, row := range byProvider {
		stats.ByProvider[row.Provider] = row.Count
	}
	return stats, nil
}

// Category returns the top-level mime type ("image", "application", ...),
// or "other" when unknown.
func Category(mime string) string {
	if i := strings.IndexByte(mime, '/'); i > 0 {
		return strings.ToLower(mime[:i])
	}
	return "other"
}
