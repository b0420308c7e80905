package models

import "time"

// FileRecord is the local cache entry for one provider file or folder.
// (AccountID, ProviderFileID) is unique; reconciliation always upserts.
type FileRecord struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	UserID         string     `gorm:"not null;index" json:"user_id"`
	AccountID      string     `gorm:"not null;uniqueIndex:idx_account_provider_file" json:"account_id"`
	ProviderFileID string     `gorm:"not null;uniqueIndex:idx_account_provider_file" json:"provider_file_id"`
	Name           string     `gorm:"not null;index" json:"name"`
	Path           string     `json:"path,omitempty"`
	MIMEType       string     `gorm:"column:mime_type" json:"mime_type"`
	Size           int64      `json:"size"`
	IsFolder       bool       `json:"is_folder"`
	ParentID       *string    `json:"parent_id,omitempty"`
	ThumbnailURL   string     `gorm:"column:thumbnail_url" json:"thumbnail_url,omitempty"`
	WebViewURL     string     `gorm:"column:web_view_url" json:"web_view_url,omitempty"`
	Starred        bool       `gorm:"not null;default:false" json:"starred"`
	Trashed        bool       `gorm:"not null;default:false" json:"trashed"`
	CreatedAt      *time.Time `gorm:"autoCreateTime:false" json:"created_at,omitempty"` // provider-reported
	ModifiedAt     *time.Time `json:"modified_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FileStats holds aggregated counters over a user's non-trashed records.
type FileStats struct {
	TotalFiles   int64            `json:"total_files"`
	TotalFolders int64            `json:"total_folders"`
	TotalSize    int64            `json:"total_size"`
	ByCategory   map[string]int64 `json:"by_category"`
	ByProvider   map[string]int64 `json:"by_provider"`
}
