// Package runs reads the run records the external runner writes under
// tasks/<id>/runs/<runId>.json. It never writes them.
package runs

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle position of a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Run is one execution record of a task.
type Run struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"taskId"`
	Status      Status          `json:"status"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Duration returns completedAt - startedAt, and false while the run has
// not completed.
func (r Run) Duration() (time.Duration, bool) {
	if r.CompletedAt == nil {
		return 0, false
	}
	return r.CompletedAt.Sub(r.StartedAt), true
}

// Query filters a run listing the way the dashboard does.
type Query struct {
	Status Status // empty matches all
	Search string // case-insensitive substring of task id or run id
}

// Match reports whether r passes the query.
func (q Query) Match(r Run) bool {
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(r.TaskID), needle) ||
		strings.Contains(strings.ToLower(r.ID), needle)
}

// Filter returns the runs matching q, preserving order.
func Filter(list []Run, q Query) []Run {
	out := make([]Run, 0, len(list))
	for _, r := range list {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarises a listing. Pending counts runs not yet terminated.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Summarize counts runs by status.
func Summarize(list []Run) Stats {
	s := Stats{Total: len(list)}
	for _, r := range list {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusPending, StatusInProgress:
			s.Pending++
		}
	}
	return s
}
