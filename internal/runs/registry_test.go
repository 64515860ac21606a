package runs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

func writeRun(t *testing.T, root, taskID, file, body string) {
	t.Helper()
	dir := filepath.Join(root, "tasks", taskID, "runs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func runJSON(id, taskID, status, startedAt string) string {
	return fmt.Sprintf(`{"id":%q,"taskId":%q,"status":%q,"startedAt":%q,"input":{"n":1}}`, id, taskID, status, startedAt)
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg, err := NewRegistry(root, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, root
}

// TestListRunsOrdering verifies newest-first ordering with a malformed record skipped.
func TestListRunsOrdering(t *testing.T) {
	reg, root := newTestRegistry(t)

	writeRun(t, root, "etl", "r1.json", runJSON("r1", "etl", "completed", "2024-05-01T10:00:00Z"))
	writeRun(t, root, "etl", "r2.json", runJSON("r2", "etl", "failed", "2024-05-01T10:05:00Z"))
	writeRun(t, root, "etl", "r3.json", runJSON("r3", "etl", "completed", "2024-05-01T09:50:00Z"))
	writeRun(t, root, "etl", "broken.json", `{"id":"broken","startedAt":`)
	writeRun(t, root, "etl", "nostart.json", `{"id":"nostart","status":"pending"}`)
	writeRun(t, root, "etl", "notes.txt", "not a run")

	list, err := reg.ListRuns("etl")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	want := []string{"r2", "r1", "r3"}
	if len(list) != len(want) {
		t.Fatalf("expected %d runs, got %d: %+v", len(want), len(list), list)
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
	if string(list[0].Input) != `{"n":1}` {
		t.Errorf("expected input to be kept raw, got %s", list[0].Input)
	}
}

// TestListRunsMissingTask verifies a task without runs lists nothing.
func TestListRunsMissingTask(t *testing.T) {
	reg, _ := newTestRegistry(t)

	list, err := reg.ListRuns("ghost")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no runs, got %+v", list)
	}

	if _, err := reg.ListRuns("../etc"); !errors.Is(err, errs.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

// TestListRunsTieBreak verifies equal start times order by id.
func TestListRunsTieBreak(t *testing.T) {
	reg, root := newTestRegistry(t)
	for _, id := range []string{"c", "a", "b"} {
		writeRun(t, root, "etl", id+".json", runJSON(id, "etl", "completed", "2024-05-01T10:00:00Z"))
	}
	list, err := reg.ListRuns("etl")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	for i, id := range []string{"a", "b", "c"} {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
}

// TestListAllRuns tests the cross-task listing and its limit.
func TestListAllRuns(t *testing.T) {
	reg, root := newTestRegistry(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		for _, task := range []string{"alpha", "beta"} {
			id := fmt.Sprintf("%s-%02d", task, i)
			started := base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
			// The record claims a different task; the directory wins.
			writeRun(t, root, task, id+".json", runJSON(id, "someone-else", "completed", started))
		}
	}
	if err := os.WriteFile(filepath.Join(root, "tasks", "README"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := reg.ListAllRuns(0)
	if err != nil {
		t.Fatalf("ListAllRuns: %v", err)
	}
	if len(all) != DefaultLimit {
		t.Fatalf("expected %d runs, got %d", DefaultLimit, len(all))
	}
	if all[0].ID != "alpha-29" || all[1].ID != "beta-29" {
		t.Errorf("unexpected head: %s, %s", all[0].ID, all[1].ID)
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.After(all[i-1].StartedAt) {
			t.Fatalf("not sorted at %d", i)
		}
	}
	for _, r := range all {
		if r.TaskID != "alpha" && r.TaskID != "beta" {
			t.Errorf("run %s: expected task id from directory, got %q", r.ID, r.TaskID)
		}
	}

	few, err := reg.ListAllRuns(3)
	if err != nil {
		t.Fatalf("ListAllRuns: %v", err)
	}
	if len(few) != 3 {
		t.Errorf("expected 3 runs, got %d", len(few))
	}
}

// TestListAllRunsNoTasks verifies an empty ecosystem lists nothing.
func TestListAllRunsNoTasks(t *testing.T) {
	reg, _ := newTestRegistry(t)
	all, err := reg.ListAllRuns(10)
	if err != nil {
		t.Fatalf("ListAllRuns: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no runs, got %d", len(all))
	}
}

// TestGetRun tests loading single records.
func TestGetRun(t *testing.T) {
	reg, root := newTestRegistry(t)
	writeRun(t, root, "etl", "ok.json", `{"taskId":"etl","status":"completed","startedAt":"2024-05-01T10:00:00Z","completedAt":"2024-05-01T10:00:30Z","output":[1,2]}`)
	writeRun(t, root, "etl", "bad.json", `nope`)

	run, err := reg.GetRun("etl", "ok")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.ID != "ok" {
		t.Errorf("expected id from file name, got %q", run.ID)
	}
	if d, ok := run.Duration(); !ok || d != 30*time.Second {
		t.Errorf("expected 30s duration, got %v %v", d, ok)
	}

	tests := []struct {
		runID   string
		wantErr error
	}{
		{"missing", errs.ErrNotFound},
		{"bad", errs.ErrNotFound},
		{"../ok", errs.ErrInvalidPath},
	}
	for _, tt := range tests {
		if _, err := reg.GetRun("etl", tt.runID); !errors.Is(err, tt.wantErr) {
			t.Errorf("GetRun(%q): expected %v, got %v", tt.runID, tt.wantErr, err)
		}
	}
	if _, err := reg.GetRun("etl", "bad"); !errors.Is(err, errs.ErrMalformedDocument) {
		t.Errorf("expected malformed cause to be kept, got %v", err)
	}
}

// TestCacheInvalidation verifies a rewritten record is parsed again.
func TestCacheInvalidation(t *testing.T) {
	reg, root := newTestRegistry(t)
	writeRun(t, root, "etl", "r.json", runJSON("r", "etl", "in_progress", "2024-05-01T10:00:00Z"))

	run, err := reg.GetRun("etl", "r")
	if err != nil || run.Status != StatusInProgress {
		t.Fatalf("GetRun: %+v, %v", run, err)
	}

	writeRun(t, root, "etl", "r.json", runJSON("r", "etl", "completed", "2024-05-01T10:00:00Z"))
	p := filepath.Join(root, "tasks", "etl", "runs", "r.json")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(p, later, later); err != nil {
		t.Fatal(err)
	}

	run, err = reg.GetRun("etl", "r")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("expected refreshed status, got %s", run.Status)
	}
}
