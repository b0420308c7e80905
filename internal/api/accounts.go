package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/cloud-nexus/internal/auth/oauthflow"
	"github.com/pysugar/cloud-nexus/internal/gateway"
	"github.com/pysugar/cloud-nexus/internal/provider"
)

// MaxUploadSize bounds multipart upload bodies.
const MaxUploadSize = 100 << 20

// ListAccountsHandler returns the user's connected accounts.
func ListAccountsHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := g.ListAccounts(r.Context(), UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

// AuthorizeURLHandler issues a state token and returns the provider's
// consent URL.
func AuthorizeURLHandler(g *gateway.Gateway, states *oauthflow.States) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := provider.ParseType(chi.URLParam(r, "provider"))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		state := states.Issue(UserID(r.Context()), p)
		url, err := g.AuthorizationURL(p, state)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url, "state": state})
	}
}

// OAuthCallbackHandler completes a consent redirect. The user is taken
// from the state token issued by AuthorizeURLHandler.
func OAuthCallbackHandler(g *gateway.Gateway, states *oauthflow.States) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := provider.ParseType(chi.URLParam(r, "provider"))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		q := r.URL.Query()
		if msg := q.Get("error"); msg != "" {
			badRequest(w, "authorization denied: "+msg)
			return
		}
		userID, err := states.Consume(q.Get("state"), p)
		if err != nil {
			writeError(w, err)
			return
		}
		code := q.Get("code")
		if code == "" {
			badRequest(w, "code is required")
			return
		}
		acc, err := g.CompleteAuthorization(r.Context(), userID, p, code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	}
}

// CompleteAuthorizationHandler exchanges an OAuth code for the provider in
// the path and connects the resulting account.
func CompleteAuthorizationHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := provider.ParseType(chi.URLParam(r, "provider"))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Code) == "" {
			badRequest(w, "code is required")
			return
		}
		acc, err := g.CompleteAuthorization(r.Context(), UserID(r.Context()), p, req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	}
}

// ConnectAccountHandler stores tokens obtained by an external OAuth flow.
func ConnectAccountHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := provider.ParseType(chi.URLParam(r, "provider"))
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		var req struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"` // seconds
			Email        string `json:"email"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		ts := &provider.TokenSet{
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ExpiresIn:    time.Duration(req.ExpiresIn) * time.Second,
		}
		acc, err := g.ConnectAccount(r.Context(), UserID(r.Context()), p, ts, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	}
}

// DisconnectHandler deactivates an account.
func DisconnectHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.Disconnect(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListFilesHandler lists an account's files, falling back to the cache.
func ListFilesHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := g.ListFiles(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	}
}

// UploadHandler accepts a multipart "file" field plus an optional
// "folder_id".
func UploadHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			badRequest(w, "invalid multipart form: "+err.Error())
			return
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file field is required")
			return
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			badRequest(w, "failed to read upload: "+err.Error())
			return
		}

		rec, err := g.Upload(r.Context(), chi.URLParam(r, "id"), provider.Upload{
			Name:     header.Filename,
			MIMEType: header.Header.Get("Content-Type"),
			FolderID: r.FormValue("folder_id"),
			Content:  content,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// CreateFolderHandler creates a folder under an optional parent.
func CreateFolderHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			ParentID string `json:"parent_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := g.CreateFolder(r.Context(), chi.URLParam(r, "id"), req.Name, req.ParentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}
