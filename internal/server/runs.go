package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
	"github.com/AnEntrypoint/sequential-gui/internal/runner"
	"github.com/AnEntrypoint/sequential-gui/internal/runs"
)

// runQuery reads ?status= and ?search=.
func runQuery(r *http.Request) runs.Query {
	q := r.URL.Query()
	return runs.Query{Status: runs.Status(q.Get("status")), Search: q.Get("search")}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	list, err := s.runs.ListRuns(r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs.Filter(list, runQuery(r)))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.PathValue("taskId"), r.PathValue("runId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListAllRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", runs.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// An explicit limit=0 asks for nothing; the registry reads 0 as the default.
	if limit == 0 {
		writeJSON(w, http.StatusOK, []runs.Run{})
		return
	}
	list, err := s.runs.ListAllRuns(limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs.Filter(list, runQuery(r)))
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", runs.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.runs.ListAllRuns(limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs.Summarize(list))
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", runs.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []persistence.Invocation{})
		return
	}
	list, err := s.history.ListInvocations(r.Context(), r.URL.Query().Get("task"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRunTask invokes the runner. By default it waits for the runner to
// exit; with ?async=1 it answers 202 at once and the outcome arrives over
// the push channel. Either way the run is not tied to the request, so a
// client disconnecting does not cancel it.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input json.RawMessage `json:"input"`
	}
	raw, err := readBody(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			s.writeError(w, r, fmt.Errorf("request body: %w: %v", errs.ErrMalformedDocument, err))
			return
		}
	}
	taskID := r.PathValue("taskId")
	ctx := context.WithoutCancel(r.Context())

	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		s.goBackground(func() {
			// Failures are already published as runError events.
			_, _ = s.invoker.Run(ctx, taskID, body.Input)
		})
		writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "taskId": taskID})
		return
	}

	res, err := s.invoker.Run(ctx, taskID, body.Input)
	if err != nil {
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": exitErr.Error()})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"invocationId": res.InvocationID,
		"durationMs":   res.Duration.Milliseconds(),
	})
}
