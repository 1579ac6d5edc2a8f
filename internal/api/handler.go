package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/oeis/internal/app"
	"github.com/kalambet/oeis/internal/oeis"
	"github.com/kalambet/oeis/internal/storage"
)

const maxRequestBodySize = 64 << 10

// Deps holds the dependencies of the HTTP and MCP surfaces.
type Deps struct {
	Catalog *app.Catalog
	Store   app.Store
	Token   string // empty disables authentication
	Logger  *slog.Logger
}

type bookmarkRequest struct {
	Notes string `json:"notes"`
}

// NewHandler returns the read-mostly REST API over the local store and the
// OEIS client. /health and /metrics are served without authentication.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, deps.Logger))
		r.Get("/search", handleSearch(deps))
		r.Get("/random", handleRandom(deps))
		r.Get("/sequences/{id}", handleGetSequence(deps))
		r.Get("/sequences/{id}/bfile", handleGetBFile(deps))
		r.Get("/bookmarks", handleListBookmarks(deps))
		r.Put("/bookmarks/{id}", handlePutBookmark(deps))
		r.Delete("/bookmarks/{id}", handleDeleteBookmark(deps))
		r.Get("/history", handleHistory(deps))
		r.Get("/recent", handleRecent(deps))
		r.Get("/stats", handleStats(deps))
		r.Delete("/cache", handleClearCache(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if oeis.NormalizeQuery(q) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		start := parseIntParam(r, "start", 0, 0)
		noCache, _ := strconv.ParseBool(r.URL.Query().Get("nocache"))

		resp, hit, err := deps.Catalog.Search(r.Context(), q, start, app.Lookup{NoCache: noCache, History: true})
		if err != nil {
			fetchError(w, "search failed", err)
			return
		}
		if resp.Results == nil {
			resp.Results = []oeis.Sequence{}
		}

		writeJSON(w, map[string]any{
			"query":   oeis.NormalizeQuery(q),
			"start":   start,
			"count":   resp.Count,
			"cached":  hit,
			"results": resp.Results,
		})
	}
}

func handleRandom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := deps.Catalog.Random(r.Context())
		if err != nil {
			fetchError(w, "random pick failed", err)
			return
		}
		writeJSON(w, seq)
	}
}

func handleGetSequence(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := numberParam(w, r)
		if !ok {
			return
		}
		noCache, _ := strconv.ParseBool(r.URL.Query().Get("nocache"))

		seq, _, err := deps.Catalog.Sequence(r.Context(), n, app.Lookup{NoCache: noCache})
		if err != nil {
			fetchError(w, "lookup failed", err)
			return
		}
		deps.Catalog.RecordView(n)
		writeJSON(w, seq)
	}
}

func handleGetBFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := numberParam(w, r)
		if !ok {
			return
		}
		entries, err := deps.Catalog.BFile(r.Context(), n)
		if err != nil {
			fetchError(w, "b-file fetch failed", err)
			return
		}
		writeJSON(w, entries)
	}
}

func handleListBookmarks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookmarks, err := deps.Store.Bookmarks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list bookmarks: %v", err)
			return
		}
		if bookmarks == nil {
			bookmarks = []storage.Bookmark{}
		}
		writeJSON(w, bookmarks)
	}
}

func handlePutBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := numberParam(w, r)
		if !ok {
			return
		}

		var req bookmarkRequest
		if r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: %v", err)
				return
			}
		}

		if err := deps.Store.AddBookmark(n, req.Notes); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save bookmark: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "bookmarked", "id": oeis.FormatANumber(n)})
	}
}

func handleDeleteBookmark(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := numberParam(w, r)
		if !ok {
			return
		}
		if err := deps.Store.RemoveBookmark(n); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove bookmark: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted", "id": oeis.FormatANumber(n)})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Store.History(parseIntParam(r, "limit", 20, 500))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.HistoryEntry{}
		}
		writeJSON(w, entries)
	}
}

func handleRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := deps.Store.RecentlyViewed(parseIntParam(r, "limit", 20, 500))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list recent views: %v", err)
			return
		}
		if views == nil {
			views = []storage.RecentView{}
		}
		writeJSON(w, views)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read stats: %v", err)
			return
		}
		writeJSON(w, stats)
	}
}

func handleClearCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.ClearCaches(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear caches: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

// numberParam parses the {id} URL parameter as an A-number. It writes a 400
// and reports false when the parameter is malformed.
func numberParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id := chi.URLParam(r, "id")
	n, err := oeis.ParseANumber(id)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid sequence id %q", id)
		return 0, false
	}
	return n, true
}

// fetchError maps OEIS client errors to HTTP statuses.
func fetchError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, oeis.ErrNotFound), errors.Is(err, oeis.ErrNoResults):
		httpError(w, http.StatusNotFound, "not_found", "%s: %v", what, err)
	case errors.Is(err, oeis.ErrTooManyResults):
		httpError(w, http.StatusUnprocessableEntity, "too_many_results", "%s: %v", what, err)
	default:
		httpError(w, http.StatusBadGateway, "upstream_error", "%s: %v", what, err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
