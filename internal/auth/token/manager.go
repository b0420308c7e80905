package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// RefreshSkew is how early a token is treated as expired.
	RefreshSkew = 60 * time.Second

	// DefaultTTL applies when the provider omits expires_in.
	DefaultTTL = time.Hour
)

// AccountStore is the persistence the manager needs.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	UpdateTokens(ctx context.Context, acc *models.Account, u db.TokenUpdate) (bool, error)
}

// Manager handles token lifecycle including proactive and reactive refresh.
// Refreshes for one account are collapsed in-process; across processes the
// account version column arbitrates.
type Manager struct {
	accounts AccountStore
	registry *provider.Registry
	group    singleflight.Group
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a new token manager.
func NewManager(accounts AccountStore, registry *provider.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		accounts: accounts,
		registry: registry,
		logger:   logger.Named("token"),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Execute runs op with a valid access token for acc. It refreshes first
// when the token is unknown or about to expire, and retries op exactly once
// after a reactive refresh when the provider rejects the token. acc is
// updated in place with any refreshed credentials.
func Execute[T any](ctx context.Context, m *Manager, acc *models.Account, op func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var out T
	err := m.run(ctx, acc, func(ctx context.Context, accessToken string) error {
		v, err := op(ctx, accessToken)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (m *Manager) run(ctx context.Context, acc *models.Account, call func(context.Context, string) error) error {
	log := logging.FromContext(ctx, m.logger).With(
		zap.String("account_id", acc.ID),
		zap.String("provider", string(acc.Provider)),
	)

	if m.needsRefresh(acc) {
		log.Debug("Token expired or expiring, refreshing before call")
		if err := m.refresh(ctx, acc, acc.AccessToken); err != nil {
			return err
		}
	}

	err := call(ctx, acc.AccessToken)
	if err == nil {
		return nil
	}
	err = provider.Classify("provider call", acc.Provider, err)
	if !provider.IsAuthExpired(err) || !acc.HasRefreshToken() {
		return err
	}

	log.Info("Access token rejected, refreshing and retrying once", zap.Error(err))
	if rerr := m.refresh(ctx, acc, acc.AccessToken); rerr != nil {
		return rerr
	}
	if err := call(ctx, acc.AccessToken); err != nil {
		return provider.Classify("provider call", acc.Provider, err)
	}
	return nil
}

func (m *Manager) needsRefresh(acc *models.Account) bool {
	if !acc.HasRefreshToken() {
		return false
	}
	return acc.TokenExpiry == nil || acc.TokenExpiry.Before(m.now().Add(RefreshSkew))
}

// refresh obtains a new token for acc, replacing rejected. Concurrent
// callers for the same account share one provider round trip, which runs
// detached from any single caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (m *Manager) refresh(ctx context.Context, acc *models.Account, rejected string) error {
	shared := context.WithoutCancel(ctx)
	ch := m.group.DoChan(acc.ID, func() (any, error) {
		return m.refreshOnce(shared, acc.ID, rejected)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	fresh := res.Val.(*models.Account)
	acc.AccessToken = fresh.AccessToken
	acc.RefreshToken = fresh.RefreshToken
	acc.TokenExpiry = fresh.TokenExpiry
	acc.Version = fresh.Version
	return nil
}

func (m *Manager) refreshOnce(ctx context.Context, accountID, rejected string) (*models.Account, error) {
	log := logging.FromContext(ctx, m.logger).With(zap.String("account_id", accountID))

	cur, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if m.usable(cur, rejected) {
		log.Debug("Adopting token refreshed by another caller")
		return cur, nil
	}
	if !cur.HasRefreshToken() {
		return nil, &provider.Error{Op: "refresh token", Provider: cur.Provider, Message: "no refresh token, reconnect account", Err: provider.ErrAuthRevoked}
	}

	adapter, err := m.registry.For(cur.Provider)
	if err != nil {
		return nil, err
	}
	ts, err := adapter.RefreshToken(ctx, cur.RefreshToken)
	if err != nil {
		err = refreshError(cur.Provider, err)
		if provider.IsAuthRevoked(err) {
			log.Warn("Refresh token rejected, account must be reconnected", zap.String("email", cur.Email), zap.Error(err))
		} else {
			log.Warn("Transient refresh failure", zap.String("email", cur.Email), zap.Error(err))
		}
		return nil, err
	}

	update := db.TokenUpdate{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		Expiry:       m.Expiry(ts.ExpiresIn),
	}
	if ts.RefreshToken != "" && ts.RefreshToken != cur.RefreshToken {
		log.Info("Rotating refresh token", zap.String("email", cur.Email))
	}
	ok, err := m.accounts.UpdateTokens(ctx, cur, update)
	if err != nil {
		return nil, err
	}
	if ok {
		log.Info("Refreshed token", zap.String("email", cur.Email), zap.Time("expires", update.Expiry))
		return cur, nil
	}

	// Lost a cross-process race: adopt the winner's token if it is usable.
	winner, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if m.usable(winner, rejected) {
		log.Info("Concurrent refresh won elsewhere, adopting stored token")
		return winner, nil
	}
	return nil, &provider.Error{Op: "refresh token", Provider: cur.Provider, Message: "account was updated concurrently, retry", Err: provider.ErrConflict}
}

// usable reports whether the stored token differs from the one being
// replaced and is still comfortably valid.
func (m *Manager) usable(acc *models.Account, rejected string) bool {
	return acc.AccessToken != "" &&
		acc.AccessToken != rejected &&
		acc.TokenExpiry != nil &&
		acc.TokenExpiry.After(m.now().Add(RefreshSkew))
}

// Expiry computes the stored expiry for a fresh token: ttl minus the skew,
// never in the past, or DefaultTTL when the provider gave none.
func (m *Manager) Expiry(ttl time.Duration) time.Time {
	now := m.now()
	if ttl <= 0 {
		return now.Add(DefaultTTL)
	}
	exp := now.Add(ttl - RefreshSkew)
	if exp.Before(now) {
		return now
	}
	return exp
}

func refreshError(p provider.Type, err error) error {
	switch {
	case errors.Is(err, provider.ErrAuthRevoked), errors.Is(err, provider.ErrTransientNetwork):
		return err
	case provider.IsPermanentRefreshError(err):
		return &provider.Error{Op: "refresh token", Provider: p, Message: fmt.Sprintf("reconnect account: %v", err), Err: provider.ErrAuthRevoked}
	}
	return &provider.Error{Op: "refresh token", Provider: p, Message: err.Error(), Err: provider.ErrTransientNetwork}
}
