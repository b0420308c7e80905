package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user identity set by the fronting
// auth layer.
const UserHeader = "X-User-ID"

type userKey struct{}

// UserID returns the user identity stored by RequireUser.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// RequestID reads X-Request-ID or generates one, echoes it on the response
// and stores a request-scoped logger on the context.
func RequestID(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = "req-" + uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := logging.WithRequestID(r.Context(), id)
			ctx = logging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog writes one structured line per request.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context(), nil).Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// APIKeyAuth validates the API key from the Authorization or x-api-key
// header. An empty key disables the check.
func APIKeyAuth(expectedKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				if strings.TrimPrefix(auth, "Bearer ") == expectedKey {
					next.ServeHTTP(w, r)
					return
				}
			}
			if r.Header.Get("x-api-key") == expectedKey {
				next.ServeHTTP(w, r)
				return
			}
			writeErrorMessage(w, http.StatusUnauthorized, "authentication_error", "Invalid API key")
		})
	}
}

// RequireUser rejects requests without an X-User-ID header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "authentication_error", "missing "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}
