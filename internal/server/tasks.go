package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/layout"
)

// graphResponse is returned by every graph mutation.
type graphResponse struct {
	Graph       json.RawMessage    `json:"graph"`
	Diagnostics []graph.Diagnostic `json:"diagnostics"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.tasks.Get(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSaveCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code *string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Code == nil {
		s.writeError(w, r, fmt.Errorf("missing code: %w", errs.ErrMalformedDocument))
		return
	}
	if err := s.tasks.SaveCode(r.Context(), r.PathValue("taskId"), *body.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.tasks.SaveConfig(r.Context(), r.PathValue("taskId"), body); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSaveGraph(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.tasks.SaveGraphDocument(r.Context(), r.PathValue("taskId"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeGraph(w, r, http.StatusOK, g)
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.tasks.LoadGraph(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := g.ToPortable()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, doc)
}

func (s *Server) handleValidateGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.tasks.LoadGraph(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	diags := g.Validate()
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       !graph.HasErrors(diags),
		"diagnostics": diags,
	})
}

func (s *Server) handleGraphLayout(w http.ResponseWriter, r *http.Request) {
	g, err := s.tasks.LoadGraph(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layout.Compute(g))
}

func (s *Server) handleGraphSVG(w http.ResponseWriter, r *http.Request) {
	g, err := s.tasks.LoadGraph(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(layout.RenderSVG(layout.Compute(g))))
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	revs, err := s.tasks.Revisions(r.Context(), r.PathValue("taskId"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("revision %q: %w", r.PathValue("seq"), errs.ErrNotFound))
		return
	}
	if s.history == nil {
		s.writeError(w, r, fmt.Errorf("revision history: %w", errs.ErrNotFound))
		return
	}
	rev, err := s.history.GetRevision(r.Context(), r.PathValue("taskId"), seq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleAddState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutateGraph(w, r, http.StatusCreated, func(g *graph.Graph) error {
		return g.AddState(body.Name)
	})
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	field, err := graph.ParseField(body.Field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := r.PathValue("name")
	s.mutateGraph(w, r, http.StatusOK, func(g *graph.Graph) error {
		return g.SetField(name, field, body.Value)
	})
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s.mutateGraph(w, r, http.StatusOK, func(g *graph.Graph) error {
		return g.DeleteState(name)
	})
}

func (s *Server) handleSetInitial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Initial string `json:"initial"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutateGraph(w, r, http.StatusOK, func(g *graph.Graph) error {
		return g.SetInitial(body.Initial)
	})
}

// mutateGraph applies fn to the stored graph and responds with the result.
func (s *Server) mutateGraph(w http.ResponseWriter, r *http.Request, status int, fn func(*graph.Graph) error) {
	g, err := s.tasks.UpdateGraph(r.Context(), r.PathValue("taskId"), fn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeGraph(w, r, status, g)
}

func (s *Server) writeGraph(w http.ResponseWriter, r *http.Request, status int, g *graph.Graph) {
	doc, err := g.ToPortable()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, graphResponse{Graph: doc, Diagnostics: g.Validate()})
}
