package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"gorm.io/gorm"
)

// AccountStore persists connected accounts.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore wraps db.
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Get loads an account by id.
func (s *AccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := s.db.WithContext(ctx).First(&acc, "id = ?", id).Error; err != nil {
		return nil, notFound("get account", "account "+id, err)
	}
	return &acc, nil
}

// FindByIdentity looks up the account for (user, provider, email),
// active or not.
func (s *AccountStore) FindByIdentity(ctx context.Context, userID string, p provider.Type, email string) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND email = ?", userID, p, email).
		First(&acc).Error
	if err != nil {
		return nil, notFound("find account", "account "+email, err)
	}
	return &acc, nil
}

// ListByUser returns the user's active accounts in connection order.
func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("connected_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Connect inserts a new account or refreshes the existing row for the
// same (user, provider, email), reactivating it.
func (s *AccountStore) Connect(ctx context.Context, acc *models.Account) (*models.Account, error) {
	var out models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND provider = ? AND email = ?", acc.UserID, acc.Provider, acc.Email).First(&out).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = *acc
			if out.ID == "" {
				out.ID = uuid.NewString()
			}
			out.IsActive = true
			return tx.Create(&out).Error
		case err != nil:
			return err
		}
		return tx.Model(&out).Updates(map[string]any{
			"access_token":  acc.AccessToken,
			"refresh_token": acc.RefreshToken,
			"token_expiry":  acc.TokenExpiry,
			"is_active":     true,
			"connected_at":  acc.ConnectedAt,
			"version":       gorm.Expr("version + 1"),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("connect account: %w", err)
	}
	// Re-read so the version bump is visible to the caller.
	return s.Get(ctx, out.ID)
}

// TokenUpdate is the result of one refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// UpdateTokens writes refreshed credentials if the row still carries
// acc.Version. It reports false when another writer got there first; acc is
// left untouched in that case.
func (s *AccountStore) UpdateTokens(ctx context.Context, acc *models.Account, u TokenUpdate) (bool, error) {
	refresh := acc.RefreshToken
	if u.RefreshToken != "" {
		refresh = u.RefreshToken
	}
	expiry := u.Expiry
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND version = ?", acc.ID, acc.Version).
		Updates(map[string]any{
			"access_token":  u.AccessToken,
			"refresh_token": refresh,
			"token_expiry":  &expiry,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("update tokens: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	acc.AccessToken = u.AccessToken
	acc.RefreshToken = refresh
	acc.TokenExpiry = &expiry
	acc.Version++
	return true, nil
}

// RecordSync stores the latest quota (when known) and sync time. Token
// columns and the version are not touched.
func (s *AccountStore) RecordSync(ctx context.Context, acc *models.Account, quota *provider.Quota, syncedAt time.Time) error {
	updates := map[string]any{"last_synced_at": &syncedAt}
	if quota != nil {
		updates["total_storage"] = quota.Total
		updates["used_storage"] = quota.Used
	}
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", acc.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	acc.LastSyncedAt = &syncedAt
	if quota != nil {
		total, used := quota.Total, quota.Used
		acc.TotalStorage = &total
		acc.UsedStorage = &used
	}
	return nil
}

// Deactivate soft-disconnects an account. Its file records are kept.
func (s *AccountStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &provider.Error{Op: "deactivate account", Message: "account " + id + " not found", Err: provider.ErrNotFound}
	}
	return nil
}
