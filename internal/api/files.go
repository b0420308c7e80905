package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/gateway"
)

// SearchHandler filters the user's cached files by query parameters.
func SearchHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseSearch(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		recs, err := g.Search(r.Context(), UserID(r.Context()), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func parseSearch(r *http.Request) (db.SearchFilter, error) {
	q := r.URL.Query()
	f := db.SearchFilter{
		Name:      q.Get("q"),
		MIMEType:  q.Get("type"),
		AccountID: q.Get("account_id"),
		SortBy:    q.Get("sort"),
		SortDesc:  strings.EqualFold(q.Get("order"), "desc"),
	}
	if raw := q.Get("starred"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, &paramError{"starred", raw}
		}
		f.Starred = &v
	}
	for _, p := range []struct {
		name string
		dst  **int64
	}{{"min_size", &f.MinSize}, {"max_size", &f.MaxSize}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return f, &paramError{p.name, raw}
		}
		*p.dst = &v
	}
	return f, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " parameter " + strconv.Quote(e.value)
}

// BatchDeleteHandler deletes the listed files, reporting per-file results.
// Files the user does not own are reported as failed.
func BatchDeleteHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileIDs []string `json:"file_ids"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.FileIDs) == 0 {
			badRequest(w, "file_ids is required")
			return
		}

		userID := UserID(r.Context())
		owned := make([]string, 0, len(req.FileIDs))
		rejected := map[string]string{}
		for _, id := range req.FileIDs {
			if err := g.AuthorizeFile(r.Context(), userID, id); err != nil {
				rejected[id] = err.Error()
				continue
			}
			owned = append(owned, id)
		}

		res := g.BatchDelete(r.Context(), owned)
		for id, msg := range rejected {
			res.Failed[id] = msg
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DeleteHandler deletes one file.
func DeleteHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DownloadHandler streams the file content as an attachment.
func DownloadHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dl, err := g.Download(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", dl.MIMEType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
		w.Header().Set("Content-Length", strconv.Itoa(len(dl.Content)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(dl.Content)
	}
}

// PreviewHandler returns the preview decision for a file.
func PreviewHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Preview(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// RenameHandler renames a file.
func RenameHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := g.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// MoveHandler relocates a file to a new path.
func MoveHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := g.Move(r.Context(), chi.URLParam(r, "id"), req.Path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// CopyHandler copies a file into another of the user's accounts.
func CopyHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetAccountID string `json:"target_account_id"`
			TargetFolderID  string `json:"target_folder_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.TargetAccountID == "" {
			badRequest(w, "target_account_id is required")
			return
		}
		rec, err := g.Copy(r.Context(), chi.URLParam(r, "id"), req.TargetAccountID, req.TargetFolderID, UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// StarHandler toggles the starred flag.
func StarHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := g.ToggleStar(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// AnalyticsHandler returns the user's storage analytics.
func AnalyticsHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := g.Analytics(r.Context(), UserID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ActivityHandler returns the user's recent activity.
func ActivityHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 || v > 500 {
				badRequest(w, "limit must be between 1 and 500")
				return
			}
			limit = v
		}
		writeJSON(w, http.StatusOK, g.RecentActivity(r.Context(), UserID(r.Context()), limit))
	}
}
