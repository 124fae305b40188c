package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"pkgradar/search"
)

// GET /api/search?q=
func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	if a.search == nil {
		writeError(w, 503, "search not configured")
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, 200, map[string]any{"suggestions": []search.Suggestion{}})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	out, err := a.search.Suggest(ctx, q)
	if err != nil {
		a.log.Error("search", "q", q, "err", err)
		writeError(w, 502, "search error")
		return
	}
	writeJSON(w, 200, map[string]any{"suggestions": out})
}
