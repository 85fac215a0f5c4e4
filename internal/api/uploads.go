package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/driftfs/driftfs/internal/fserr"
)

func (s *Server) handleInitUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DestDir     string `json:"destDir"`
		FileName    string `json:"fileName"`
		TotalChunks int    `json:"totalChunks"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}

	sess, err := s.uploads.InitUpload(r.Context(), req.DestDir, req.FileName, req.TotalChunks)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]any{
		"sessionId":   sess.ID,
		"chunkSize":   s.uploads.ChunkSize(),
		"totalChunks": sess.TotalChunks,
		"expiresAt":   sess.ExpiresAt,
	})
}

// handleSaveChunk accepts one raw chunk body. Chunks may arrive in any
// order and concurrently.
func (s *Server) handleSaveChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		s.fail(w, fserr.Invalid("invalid chunk index"))
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, fserr.Wrap(fserr.KindTransient, err, "read chunk body"))
		return
	}
	if len(data) == 0 {
		s.fail(w, fserr.Invalid("empty chunk body"))
		return
	}

	if err := s.uploads.SaveChunk(r.Context(), sessionID, index, data); err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "chunkIndex": index})
}

func (s *Server) handleFinalizeUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	path, err := s.uploads.FinalizeUpload(r.Context(), sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if err := s.uploads.CancelUpload(r.Context(), sessionID); err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}
