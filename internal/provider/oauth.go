package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuthClient performs authorization-code exchange and refresh-token grants
// for one provider. Adapters embed it to satisfy the token half of Adapter.
type OAuthClient struct {
	provider Type
	config   *oauth2.Config
	client   *http.Client
	now      func() time.Time
}

// NewOAuthClient wraps cfg. The HTTP client, when non-nil, is used for the
// token endpoint so the per-call timeout and pacing apply to refreshes too.
func NewOAuthClient(p Type, cfg *oauth2.Config, client *http.Client) *OAuthClient {
	return &OAuthClient{provider: p, config: cfg, client: client, now: time.Now}
}

func (o *OAuthClient) context(ctx context.Context) context.Context {
	if o.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.client)
}

// AuthCodeURL builds the consent URL; offline access is requested so the
// provider issues a refresh token.
func (o *OAuthClient) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for a token set.
func (o *OAuthClient) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &Error{Op: "exchange code", Provider: o.provider, Message: "authorization code is empty", Err: ErrValidation}
	}
	tok, err := o.config.Exchange(o.context(ctx), code)
	if err != nil {
		return nil, &Error{Op: "exchange code", Provider: o.provider, Err: classifyRefresh(err), Cause: err}
	}
	return o.tokenSet(tok), nil
}

// RefreshToken runs the refresh_token grant. Failures are classified as
// ErrAuthRevoked when the grant itself was rejected and
// ErrTransientNetwork otherwise.
func (o *OAuthClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, &Error{Op: "refresh token", Provider: o.provider, Message: "no refresh token", Err: ErrAuthRevoked}
	}
	src := o.config.TokenSource(o.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, &Error{Op: "refresh token", Provider: o.provider, Err: classifyRefresh(err), Cause: err}
	}
	return o.tokenSet(tok), nil
}

func (o *OAuthClient) tokenSet(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		if ttl := tok.Expiry.Sub(o.now()); ttl > 0 {
			ts.ExpiresIn = ttl.Round(time.Second)
		}
	}
	return ts
}

var permanentRefreshMarkers = []string{
	"invalid_grant",
	"invalid_client",
	"unauthorized_client",
	"token has been expired or revoked",
	"revoked",
}

// IsPermanentRefreshError reports whether a refresh failure means the
// grant is gone and the user has to reconnect.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
		if re.Response != nil {
			switch re.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range permanentRefreshMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classifyRefresh(err error) error {
	if IsPermanentRefreshError(err) {
		return ErrAuthRevoked
	}
	return ErrTransientNetwork
}
