package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pysugar/cloud-nexus/internal/provider"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// errorKinds maps classified failures to HTTP status and error type, in
// match order.
var errorKinds = []struct {
	target error
	status int
	kind   string
}{
	{provider.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{provider.ErrNotFound, http.StatusNotFound, "not_found"},
	{provider.ErrValidation, http.StatusBadRequest, "validation_error"},
	{provider.ErrUnsupported, http.StatusNotImplemented, "unsupported"},
	{provider.ErrAuthRevoked, http.StatusUnauthorized, "auth_revoked"},
	{provider.ErrAuthExpired, http.StatusUnauthorized, "auth_expired"},
	{provider.ErrQuotaExceeded, http.StatusInsufficientStorage, "quota_exceeded"},
	{provider.ErrConflict, http.StatusConflict, "conflict"},
	{provider.ErrTransientNetwork, http.StatusServiceUnavailable, "transient_error"},
	{provider.ErrProvider, http.StatusBadGateway, "provider_error"},
}

// StatusFor returns the HTTP status and error type for err.
func StatusFor(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := StatusFor(err)
	writeErrorMessage(w, status, kind, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: msg, Type: kind}})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErrorMessage(w, http.StatusBadRequest, "validation_error", msg)
}

// decodeJSON reads a JSON request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
