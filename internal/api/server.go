// Package api exposes the filesystem engine's typed operations as JSON
// endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/browse"
	"github.com/driftfs/driftfs/internal/events"
	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/fsops"
	"github.com/driftfs/driftfs/internal/logging"
	"github.com/driftfs/driftfs/internal/metrics"
	"github.com/driftfs/driftfs/internal/mounts"
	"github.com/driftfs/driftfs/internal/thumbs"
	"github.com/driftfs/driftfs/internal/upload"
)

// Server is the HTTP server over the filesystem engine.
type Server struct {
	registry    *mounts.Registry
	lister      *browse.Lister
	neighbors   *browse.NeighborFinder
	ops         *fsops.Ops
	uploads     *upload.Manager
	thumbs      *thumbs.Cache
	broadcaster *events.Broadcaster
}

// New creates the HTTP server.
func New(registry *mounts.Registry, lister *browse.Lister, neighbors *browse.NeighborFinder,
	ops *fsops.Ops, uploads *upload.Manager, thumbCache *thumbs.Cache,
	broadcaster *events.Broadcaster) *Server {
	return &Server{
		registry:    registry,
		lister:      lister,
		neighbors:   neighbors,
		ops:         ops,
		uploads:     uploads,
		thumbs:      thumbCache,
		broadcaster: broadcaster,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/mounts", s.handleMounts)

	// Browsing
	mux.HandleFunc("GET /api/v1/list", s.handleList)
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/neighbors", s.handleNeighbors)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	// Mutations
	mux.HandleFunc("POST /api/v1/folders", s.handleCreateFolder)
	mux.HandleFunc("POST /api/v1/files", s.handleCreateFile)
	mux.HandleFunc("PUT /api/v1/content", s.handleWriteContent)
	mux.HandleFunc("POST /api/v1/rename", s.handleRename)
	mux.HandleFunc("POST /api/v1/copy", s.handleCopy)
	mux.HandleFunc("POST /api/v1/move", s.handleMove)
	mux.HandleFunc("POST /api/v1/delete", s.handleDelete)

	// Chunked uploads
	mux.HandleFunc("POST /api/v1/uploads", s.handleInitUpload)
	mux.HandleFunc("PUT /api/v1/uploads/{sessionId}/chunks/{index}", s.handleSaveChunk)
	mux.HandleFunc("POST /api/v1/uploads/{sessionId}/complete", s.handleFinalizeUpload)
	mux.HandleFunc("DELETE /api/v1/uploads/{sessionId}", s.handleCancelUpload)

	// Thumbnails
	mux.HandleFunc("GET /api/v1/thumbnail", s.handleThumbnail)
	mux.HandleFunc("DELETE /api/v1/thumbnails", s.handleDeleteThumbnails)
	mux.HandleFunc("POST /api/v1/thumbnails/cleanup", s.handleThumbnailCleanup)
	mux.HandleFunc("GET /api/v1/thumbnails/stats", s.handleThumbnailStats)

	// SSE
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	return metrics.Middleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMounts(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.registry.Mounts())
}

// handleEvents streams filesystem change events over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  int    `json:"code"`
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

// fail maps an engine error to a response. Unclassified errors become a
// generic 500 so internals never leak across the boundary.
func (s *Server) fail(w http.ResponseWriter, err error) {
	kind := fserr.KindOf(err)
	var code int
	message := err.Error()
	switch kind {
	case fserr.KindAccessDenied:
		code = http.StatusForbidden
	case fserr.KindNotFound:
		code = http.StatusNotFound
	case fserr.KindConflict:
		code = http.StatusConflict
	case fserr.KindInvalid:
		code = http.StatusBadRequest
	default:
		code = http.StatusInternalServerError
		logging.Error("internal error", zap.Error(err))
		message = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Kind: kind.String(), Code: code})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fserr.Invalid("invalid request body")
	}
	return nil
}
