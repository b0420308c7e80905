package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"gorm.io/gorm"
)

// ActivityStore persists the activity log.
type ActivityStore struct {
	db *gorm.DB
}

// NewActivityStore wraps db.
func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// Record inserts one entry, assigning an id when missing.
func (s *ActivityStore) Record(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// Recent returns the user's latest entries, newest first.
func (s *ActivityStore) Recent(ctx context.Context, userID string, limit int) ([]models.ActivityLog, error) {
	var logs []models.ActivityLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return logs, nil
}

// Stats counts successful uploads and downloads overall and since dayStart.
func (s *ActivityStore) Stats(ctx context.Context, userID string, dayStart time.Time) (*models.ActivityStats, error) {
	count := func(typ models.ActivityType, since *time.Time) (int64, error) {
		var n int64
		q := s.db.WithContext(ctx).Model(&models.ActivityLog{}).
			Where("user_id = ? AND type = ? AND status = ?", userID, typ, models.StatusSuccess)
		if since != nil {
			q = q.Where("created_at >= ?", *since)
		}
		err := q.Count(&n).Error
		return n, err
	}

	var stats models.ActivityStats
	var err error
	if stats.UploadsTotal, err = count(models.ActivityUpload, nil); err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	if stats.UploadsToday, err = count(models.ActivityUpload, &dayStart); err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	if stats.DownloadsTotal, err = count(models.ActivityDownload, nil); err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	if stats.DownloadsToday, err = count(models.ActivityDownload, &dayStart); err != nil {
		return nil, fmt.Errorf("activity stats: %w", err)
	}
	return &stats, nil
}

// Purge deletes entries older than cutoff and returns how many went.
func (s *ActivityStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ActivityLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge activity: %w", res.Error)
	}
	return res.RowsAffected, nil
}
