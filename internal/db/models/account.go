package models

import (
	"time"

	"github.com/pysugar/cloud-nexus/internal/provider"
)

// Account stores the OAuth identity and tokens of one connected storage
// account. Only the token executor writes the token columns after the
// initial connect.
type Account struct {
	ID           string        `gorm:"primaryKey" json:"id"` // UUID
	UserID       string        `gorm:"not null;uniqueIndex:idx_user_provider_email" json:"user_id"`
	Provider     provider.Type `gorm:"not null;uniqueIndex:idx_user_provider_email" json:"provider"`
	Email        string        `gorm:"not null;uniqueIndex:idx_user_provider_email" json:"email"`
	AccessToken  string        `json:"-"`
	RefreshToken string        `json:"-"`
	TokenExpiry  *time.Time    `json:"token_expiry,omitempty"` // nil = unknown
	TotalStorage *int64        `json:"total_storage,omitempty"`
	UsedStorage  *int64        `json:"used_storage,omitempty"`
	IsActive     bool          `gorm:"default:true" json:"is_active"`
	ConnectedAt  time.Time     `json:"connected_at"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`
	Version      int64         `gorm:"not null;default:0" json:"-"` // optimistic lock for token writes
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HasRefreshToken reports whether the account can be refreshed at all.
func (a *Account) HasRefreshToken() bool {
	return a.RefreshToken != ""
}
