// Package gateway is the single entry point for file and account operations
// across every connected storage provider. Each operation resolves the
// account's adapter, runs the provider call through the token manager, and
// reconciles the result into the local metadata cache.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pysugar/cloud-nexus/internal/activity"
	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"github.com/pysugar/cloud-nexus/internal/preview"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
)

// Gateway orchestrates provider calls, token refresh and cache updates.
type Gateway struct {
	accounts *db.AccountStore
	files    *db.FileStore
	activity *activity.Monitor
	registry *provider.Registry
	tokens   *token.Manager
	previews *preview.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// Deps are the collaborators a Gateway needs.
type Deps struct {
	Accounts *db.AccountStore
	Files    *db.FileStore
	Activity *activity.Monitor
	Registry *provider.Registry
	Tokens   *token.Manager
	Previews *preview.Resolver
	Logger   *zap.Logger
}

// New creates a Gateway.
func New(d Deps) *Gateway {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		accounts: d.Accounts,
		files:    d.Files,
		activity: d.Activity,
		registry: d.Registry,
		tokens:   d.Tokens,
		previews: d.Previews,
		logger:   logger.Named("gateway"),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

func (g *Gateway) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, g.logger)
}

func validation(op, msg string) error {
	return &provider.Error{Op: op, Message: msg, Err: provider.ErrValidation}
}

func denied(op, msg string) error {
	return &provider.Error{Op: op, Message: msg, Err: provider.ErrPermissionDenied}
}

// ListAccounts returns the user's active accounts.
func (g *Gateway) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return g.accounts.ListByUser(ctx, userID)
}

// ConnectAccount stores freshly obtained credentials. An existing account
// for the same (user, provider, email) is updated and reactivated.
func (g *Gateway) ConnectAccount(ctx context.Context, userID string, p provider.Type, ts *provider.TokenSet, email string) (*models.Account, error) {
	const op = "connect account"
	if ts == nil || ts.AccessToken == "" {
		return nil, validation(op, "access token is required")
	}
	if strings.TrimSpace(email) == "" {
		return nil, validation(op, "account email is required")
	}
	if _, err := g.registry.For(p); err != nil {
		return nil, err
	}

	now := g.now().UTC()
	expiry := g.tokens.Expiry(ts.ExpiresIn).UTC()
	acc, err := g.accounts.Connect(ctx, &models.Account{
		UserID:       userID,
		Provider:     p,
		Email:        email,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenExpiry:  &expiry,
		ConnectedAt:  now,
	})
	g.record(ctx, models.ActivityLog{UserID: userID, Type: models.ActivityConnect, Message: string(p) + " " + email}, err)
	if err != nil {
		return nil, err
	}
	g.log(ctx).Info("Connected account",
		zap.String("account_id", acc.ID), zap.String("provider", string(p)), zap.String("email", email))

	g.syncQuota(ctx, acc)
	return acc, nil
}

// AuthorizationURL returns the consent URL for p carrying state.
func (g *Gateway) AuthorizationURL(p provider.Type, state string) (string, error) {
	adapter, err := g.registry.For(p)
	if err != nil {
		return "", err
	}
	a, ok := adapter.(provider.Authorizer)
	if !ok {
		return "", &provider.Error{Op: "authorization url", Provider: p, Message: "provider has no consent flow", Err: provider.ErrUnsupported}
	}
	return a.AuthCodeURL(state), nil
}

// CompleteAuthorization exchanges an authorization code, resolves the
// account email and connects the account.
func (g *Gateway) CompleteAuthorization(ctx context.Context, userID string, p provider.Type, code string) (*models.Account, error) {
	adapter, err := g.registry.For(p)
	if err != nil {
		return nil, err
	}
	ts, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, provider.Classify("exchange code", p, err)
	}
	email, err := adapter.UserEmail(ctx, ts.AccessToken)
	if err != nil {
		return nil, provider.Classify("resolve account email", p, err)
	}
	return g.ConnectAccount(ctx, userID, p, ts, email)
}

// Disconnect deactivates an account. Cached file records are kept.
func (g *Gateway) Disconnect(ctx context.Context, accountID string) error {
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	err = g.accounts.Deactivate(ctx, accountID)
	g.record(ctx, models.ActivityLog{UserID: acc.UserID, AccountID: acc.ID, Type: models.ActivityDisconnect}, err)
	if err != nil {
		return err
	}
	g.log(ctx).Info("Disconnected account", zap.String("account_id", accountID), zap.String("email", acc.Email))
	return nil
}

// AuthorizeAccount checks that the account belongs to userID.
func (g *Gateway) AuthorizeAccount(ctx context.Context, userID, accountID string) error {
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.UserID != userID {
		return denied("authorize account", "account is not linked to the current user")
	}
	return nil
}

// AuthorizeFile checks that the file record belongs to userID.
func (g *Gateway) AuthorizeFile(ctx context.Context, userID, fileID string) error {
	rec, err := g.files.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return denied("authorize file", "you do not have permission to access this file")
	}
	return nil
}

// activeAccount loads an account and its adapter, rejecting disconnected
// accounts.
func (g *Gateway) activeAccount(ctx context.Context, op, accountID string) (*models.Account, provider.Adapter, error) {
	acc, err := g.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if !acc.IsActive {
		return nil, nil, &provider.Error{Op: op, Provider: acc.Provider, Message: "account is disconnected, reconnect it first", Err: provider.ErrAuthRevoked}
	}
	adapter, err := g.registry.For(acc.Provider)
	if err != nil {
		return nil, nil, err
	}
	return acc, adapter, nil
}

// fileAccount loads a file record together with its account and adapter.
func (g *Gateway) fileAccount(ctx context.Context, op, fileID string) (*models.FileRecord, *models.Account, provider.Adapter, error) {
	rec, err := g.files.Get(ctx, fileID)
	if err != nil {
		return nil, nil, nil, err
	}
	acc, adapter, err := g.activeAccount(ctx, op, rec.AccountID)
	if err != nil {
		return nil, nil, nil, err
	}
	return rec, acc, adapter, nil
}

// syncQuota refreshes quota and last-synced-at. Failures are logged only.
func (g *Gateway) syncQuota(ctx context.Context, acc *models.Account) {
	adapter, err := g.registry.For(acc.Provider)
	if err != nil {
		return
	}
	quota, err := token.Execute(ctx, g.tokens, acc, func(ctx context.Context, accessToken string) (*provider.Quota, error) {
		return adapter.StorageQuota(ctx, accessToken)
	})
	if err != nil {
		g.log(ctx).Warn("Failed to refresh storage quota", zap.String("account_id", acc.ID), zap.Error(err))
		quota = nil
	}
	if err := g.accounts.RecordSync(ctx, acc, quota, g.now().UTC()); err != nil {
		g.log(ctx).Warn("Failed to record sync", zap.String("account_id", acc.ID), zap.Error(err))
	}
}

func (g *Gateway) record(ctx context.Context, entry models.ActivityLog, err error) {
	if g.activity == nil {
		return
	}
	g.activity.Record(ctx, entry, err)
}

// wrap names the operation on errors that do not carry one already.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if provider.Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
