// Package logging provides the zap logger setup and request ID context
// propagation.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	loggerKey    contextKey = "logger"
)

// GenerateRequestID creates an 8-character hex request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger stores l on the context, annotated with the request ID when
// one is present.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	if id := GetRequestID(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request-scoped logger, or fallback when the
// context carries none. A nil fallback yields zap's global logger.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	if fallback == nil {
		fallback = zap.L()
	}
	if id := GetRequestID(ctx); id != "" {
		return fallback.With(zap.String("request_id", id))
	}
	return fallback
}
