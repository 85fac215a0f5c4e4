package api

import (
	"net/http"

	"github.com/driftfs/driftfs/internal/fserr"
)

// handleThumbnail returns the cached preview for a file, generating it on
// first access. Unsupported sources return 204 with no body.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}

	result, err := s.thumbs.GetThumbnail(r.Context(), path)
	if err != nil {
		s.fail(w, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Bytes)
}

// handleDeleteThumbnails drops cached previews for a path and everything
// under it.
func (s *Server) handleDeleteThumbnails(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}

	removed, err := s.thumbs.InvalidateTree(path)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleThumbnailCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.thumbs.DeleteOrphans()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleThumbnailStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.thumbs.Stats()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}
