// Package api exposes the gateway operations over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/cloud-nexus/internal/auth/oauthflow"
	"github.com/pysugar/cloud-nexus/internal/gateway"
	"github.com/pysugar/cloud-nexus/internal/version"
	"go.uber.org/zap"
)

// Options configures NewRouter.
type Options struct {
	Gateway *gateway.Gateway
	Logger  *zap.Logger
	APIKey  string
	// States tracks consent redirects; nil creates a private store.
	States  *oauthflow.States
}

// NewRouter builds the HTTP surface. Every /api route requires X-User-ID,
// and routes under an account or file id additionally check ownership.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := opts.Gateway
	states := opts.States
	if states == nil {
		states = oauthflow.NewStates(0)
	}

	r := chi.NewRouter()
	r.Use(RequestID(logger))
	r.Use(AccessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", HealthHandler(g))
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})

	// Provider redirects carry no identity headers; the state token does.
	r.Get("/oauth/{provider}/callback", OAuthCallbackHandler(g, states))

	r.Route("/api", func(r chi.Router) {
		r.Use(APIKeyAuth(opts.APIKey))
		r.Use(RequireUser)

		r.Get("/accounts", ListAccountsHandler(g))
		r.Get("/accounts/{provider}/authorize", AuthorizeURLHandler(g, states))
		r.Post("/accounts/{provider}/callback", CompleteAuthorizationHandler(g))
		r.Post("/accounts/{provider}/tokens", ConnectAccountHandler(g))
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Use(ownAccount(g))
			r.Delete("/", DisconnectHandler(g))
			r.Get("/files", ListFilesHandler(g))
			r.Post("/files", UploadHandler(g))
			r.Post("/folders", CreateFolderHandler(g))
		})

		r.Get("/files", SearchHandler(g))
		r.Post("/files/batch-delete", BatchDeleteHandler(g))
		r.Route("/files/{id}", func(r chi.Router) {
			r.Use(ownFile(g))
			r.Delete("/", DeleteHandler(g))
			r.Get("/content", DownloadHandler(g))
			r.Get("/preview", PreviewHandler(g))
			r.Post("/rename", RenameHandler(g))
			r.Post("/move", MoveHandler(g))
			r.Post("/copy", CopyHandler(g))
			r.Post("/star", StarHandler(g))
		})

		r.Get("/analytics", AnalyticsHandler(g))
		r.Get("/activity", ActivityHandler(g))
	})
	return r
}

func ownAccount(g *gateway.Gateway) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.AuthorizeAccount(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ownFile(g *gateway.Gateway) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.AuthorizeFile(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HealthHandler reports liveness together with the operation counters.
func HealthHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"operations": g.OperationCounters(),
		})
	}
}
