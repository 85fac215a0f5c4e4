package api

import (
	"net/http"
	"strconv"

	"github.com/driftfs/driftfs/internal/browse"
	"github.com/driftfs/driftfs/internal/fserr"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}
	showHidden, err := requireBool(q.Get("showHidden"))
	if err != nil {
		s.fail(w, err)
		return
	}

	opts := browse.ListOptions{
		Page:       queryInt(q.Get("page"), 1),
		PageSize:   queryInt(q.Get("pageSize"), browse.DefaultPageSize),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
		ShowHidden: showHidden,
		Search:     q.Get("search"),
	}

	result, err := s.lister.ListDirectory(r.Context(), path, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}
	query := q.Get("query")
	if query == "" {
		s.fail(w, fserr.Invalid("query is required"))
		return
	}
	showHidden, err := requireBool(q.Get("showHidden"))
	if err != nil {
		s.fail(w, err)
		return
	}

	opts := browse.SearchOptions{
		Recursive:  q.Get("recursive") != "false",
		ShowHidden: showHidden,
		Limit:      queryInt(q.Get("limit"), browse.DefaultSearchLimit),
	}

	items, err := s.lister.SearchFiles(r.Context(), path, query, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}

	opts := browse.NeighborOptions{
		Before:    queryInt(q.Get("before"), 1),
		After:     queryInt(q.Get("after"), 1),
		MediaType: q.Get("mediaType"),
	}

	result, err := s.neighbors.GetNeighbors(r.Context(), path, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}

	stats, err := s.lister.GetStats(r.Context(), path)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// requireBool parses a boolean query parameter that callers must state
// explicitly. Hidden-file visibility has no server-side default.
func requireBool(raw string) (bool, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "":
		return false, fserr.Invalid("showHidden is required")
	default:
		return false, fserr.Invalid("showHidden must be true or false")
	}
}
