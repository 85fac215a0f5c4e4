package api

import (
	"io"
	"net/http"

	"github.com/driftfs/driftfs/internal/fserr"
)

type createRequest struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	path, err := s.ops.CreateFolder(req.Parent, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"path": path})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	path, err := s.ops.CreateFile(req.Parent, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, map[string]string{"path": path})
}

// handleWriteContent replaces a file's content with the raw request body.
func (s *Server) handleWriteContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.fail(w, fserr.Invalid("path is required"))
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, fserr.Wrap(fserr.KindTransient, err, "read request body"))
		return
	}
	if err := s.ops.WriteFile(path, data); err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"path": path, "size": len(data)})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		NewName string `json:"newName"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	newPath, err := s.ops.Rename(req.Path, req.NewName)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"path": newPath})
}

type batchRequest struct {
	Sources []string `json:"sources"`
	DestDir string   `json:"destDir"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.ops.Copy(req.Sources, req.DestDir)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.ops.Move(req.Sources, req.DestDir)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.ops.Delete(req.Paths)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}
