package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/artifact"
	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// vfsFile is the GET response for a file.
type vfsFile struct {
	Path     string    `json:"path"`
	Content  string    `json:"content"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// vfsAddress extracts (taskId, scope, path) from the request.
func vfsAddress(r *http.Request) (string, artifact.Scope, string, error) {
	scope, err := artifact.ParseScope(r.PathValue("scope"))
	if err != nil {
		return "", "", "", err
	}
	return r.PathValue("taskId"), scope, "/" + r.PathValue("path"), nil
}

// handleVFSGet serves a directory listing or a file's content, whichever
// the path names.
func (s *Server) handleVFSGet(w http.ResponseWriter, r *http.Request) {
	taskID, scope, p, err := vfsAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.artifacts.Stat(r.Context(), taskID, scope, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if entry.IsDir {
		listing, err := s.artifacts.List(r.Context(), taskID, scope, p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
		return
	}

	file, err := s.artifacts.Read(r.Context(), taskID, scope, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vfsFile{
		Path:     file.Path,
		Content:  file.Content,
		Size:     file.Size,
		Modified: file.ModifiedAt,
	})
}

func (s *Server) handleVFSWrite(w http.ResponseWriter, r *http.Request) {
	taskID, scope, p, err := vfsAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Content *string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Content == nil {
		s.writeError(w, r, fmt.Errorf("missing content: %w", errs.ErrMalformedDocument))
		return
	}

	entry, err := s.artifacts.Write(r.Context(), taskID, scope, p, *body.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": entry.Path, "size": entry.Size})
}

func (s *Server) handleVFSDelete(w http.ResponseWriter, r *http.Request) {
	taskID, scope, p, err := vfsAddress(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.artifacts.Delete(r.Context(), taskID, scope, p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
