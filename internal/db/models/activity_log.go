package models

import "time"

// ActivityType names a gateway operation recorded in the activity log.
type ActivityType string

const (
	ActivityUpload       ActivityType = "UPLOAD"
	ActivityDownload     ActivityType = "DOWNLOAD"
	ActivityDelete       ActivityType = "DELETE"
	ActivityRename       ActivityType = "RENAME"
	ActivityMove         ActivityType = "MOVE"
	ActivityCopy         ActivityType = "COPY"
	ActivityView         ActivityType = "VIEW"
	ActivityCreateFolder ActivityType = "CREATE_FOLDER"
	ActivityConnect      ActivityType = "CONNECT"
	ActivityDisconnect   ActivityType = "DISCONNECT"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// ActivityLog stores one gateway operation for analytics.
type ActivityLog struct {
	ID        string       `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"index" json:"user_id"`
	AccountID string       `gorm:"index" json:"account_id,omitempty"`
	FileID    string       `json:"file_id,omitempty"`
	Type      ActivityType `gorm:"index" json:"type"`
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
	Duration  int64        `json:"duration"` // milliseconds
	CreatedAt time.Time    `gorm:"index" json:"created_at"`
}

// ActivityStats holds transfer counters for analytics.
type ActivityStats struct {
	UploadsTotal   int64 `json:"uploads_total"`
	UploadsToday   int64 `json:"uploads_today"`
	DownloadsTotal int64 `json:"downloads_total"`
	DownloadsToday int64 `json:"downloads_today"`
}
