package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
)

// TestCheckAll verifies every task is validated and results are sorted.
func TestCheckAll(t *testing.T) {
	c, _, root := newTestCatalog(t)
	ctx := context.Background()

	good := graph.New("good", "start")
	for _, name := range []string{"start", "done"} {
		if err := good.AddState(name); err != nil {
			t.Fatal(err)
		}
	}
	if err := good.SetField("start", graph.FieldOnDone, "done"); err != nil {
		t.Fatal(err)
	}
	if err := good.SetField("done", graph.FieldKind, string(graph.KindFinal)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SaveGraph(ctx, "good", good); err != nil {
		t.Fatal(err)
	}

	bad := graph.New("bad", "start")
	if err := bad.AddState("start"); err != nil {
		t.Fatal(err)
	}
	if err := bad.SetField("start", graph.FieldOnDone, "ghost"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SaveGraph(ctx, "bad", bad); err != nil {
		t.Fatal(err)
	}

	writeTaskFile(t, root, "empty", CodeFile, "console.log(1)")

	results, err := c.CheckAll(ctx, 2)
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byID := map[string]CheckResult{}
	for i, r := range results {
		byID[r.TaskID] = r
		if i > 0 && results[i-1].TaskID > r.TaskID {
			t.Errorf("results not sorted: %q before %q", results[i-1].TaskID, r.TaskID)
		}
	}

	if r := byID["good"]; !r.Valid || r.StateCount != 2 {
		t.Errorf("good: valid=%v states=%d diags=%v", r.Valid, r.StateCount, r.Diagnostics)
	}
	if r := byID["bad"]; r.Valid || !hasCode(r.Diagnostics, graph.CodeDanglingTarget) {
		t.Errorf("bad: expected dangling target error, got %v", r.Diagnostics)
	}
	if r := byID["empty"]; r.Valid || !hasCode(r.Diagnostics, graph.CodeMissingInitial) {
		t.Errorf("empty: expected missing initial error, got %v", r.Diagnostics)
	}
}

// TestCheckAllCancelled verifies cancellation aborts the sweep.
func TestCheckAllCancelled(t *testing.T) {
	c, _, root := newTestCatalog(t)
	for _, id := range []string{"a", "b", "c"} {
		writeTaskFile(t, root, id, CodeFile, "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.CheckAll(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func hasCode(diags []graph.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}
