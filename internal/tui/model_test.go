package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/tasks"
	"github.com/AnEntrypoint/sequential-gui/internal/watch"
)

func testGraph(t *testing.T, id string) *graph.Graph {
	t.Helper()
	g := graph.New(id, "start")
	for _, name := range []string{"start", "finish"} {
		if err := g.AddState(name); err != nil {
			t.Fatalf("AddState(%q): %v", name, err)
		}
	}
	return g
}

// update applies msg and returns the concrete model.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

// TestRunPaneTracksRunLifecycle verifies status and output follow run events.
func TestRunPaneTracksRunLifecycle(t *testing.T) {
	m := NewRunPaneModel("")
	start := time.Now()

	m, _ = m.Update(events.RunStartEvent{Task: "etl", Timestamp: start})
	m, _ = m.Update(events.LogEvent{Task: "etl", Stream: "stdout", Data: "line one\n", Timestamp: start})
	m, _ = m.Update(events.RunCompleteEvent{Task: "etl", Timestamp: start.Add(1500 * time.Millisecond)})

	task, ok := m.Task("etl")
	if !ok {
		t.Fatal("task etl not tracked")
	}
	if task.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", task.Status, StatusCompleted)
	}
	if task.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", task.Duration)
	}
	if !strings.Contains(task.Output.String(), "line one") {
		t.Errorf("output missing log data: %q", task.Output.String())
	}
	if m.SelectedTaskID() != "etl" {
		t.Errorf("SelectedTaskID() = %q, want etl", m.SelectedTaskID())
	}
}

// TestRunPaneRecordsFailure verifies a run error marks the task failed.
func TestRunPaneRecordsFailure(t *testing.T) {
	m := NewRunPaneModel("")
	m, _ = m.Update(events.RunStartEvent{Task: "etl", Timestamp: time.Now()})
	m, _ = m.Update(events.RunErrorEvent{Task: "etl", Error: "boom\n", Timestamp: time.Now()})

	task, _ := m.Task("etl")
	if task.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", task.Status, StatusFailed)
	}
	if !strings.Contains(task.Output.String(), "failed: boom") {
		t.Errorf("output missing failure notice: %q", task.Output.String())
	}
}

// TestRunPaneIgnoresUntaggedLogs verifies log chunks without a task are dropped.
func TestRunPaneIgnoresUntaggedLogs(t *testing.T) {
	m := NewRunPaneModel("")
	m, _ = m.Update(events.LogEvent{Data: "orphan"})
	if m.SelectedTaskID() != "" {
		t.Errorf("SelectedTaskID() = %q, want none", m.SelectedTaskID())
	}
}

// TestRunPaneCapsOutput verifies retained output stays bounded.
func TestRunPaneCapsOutput(t *testing.T) {
	m := NewRunPaneModel("big")
	chunk := strings.Repeat("x", 4095) + "\n"
	for i := 0; i < (maxLogBytes/len(chunk))+10; i++ {
		m, _ = m.Update(events.LogEvent{Task: "big", Data: chunk})
	}
	task, _ := m.Task("big")
	if task.Output.Len() > maxLogBytes {
		t.Errorf("output length %d exceeds cap %d", task.Output.Len(), maxLogBytes)
	}
}

// TestRunPaneSelection verifies j/k move the selection when focused only.
func TestRunPaneSelection(t *testing.T) {
	m := NewRunPaneModel("")
	m, _ = m.Update(events.TaskUpdatedEvent{Task: "a", What: tasks.UpdatedCode})
	m, _ = m.Update(events.TaskUpdatedEvent{Task: "b", What: tasks.UpdatedCode})

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	m, _ = m.Update(down)
	if m.SelectedTaskID() != "a" {
		t.Fatalf("unfocused pane moved selection to %q", m.SelectedTaskID())
	}

	m.SetFocused(true)
	m, _ = m.Update(down)
	if m.SelectedTaskID() != "b" {
		t.Errorf("SelectedTaskID() = %q, want b", m.SelectedTaskID())
	}
	m, _ = m.Update(down)
	if m.SelectedTaskID() != "b" {
		t.Errorf("selection moved past the end: %q", m.SelectedTaskID())
	}
}

// TestGraphPaneDropsStaleResults verifies a load for another task is ignored.
func TestGraphPaneDropsStaleResults(t *testing.T) {
	m := NewGraphPaneModel()
	m.SetSize(80, 30)
	m.Show("etl")

	m, _ = m.Update(graphLoadedMsg{taskID: "other", graph: testGraph(t, "other")})
	if m.loaded {
		t.Fatal("stale result marked pane loaded")
	}

	m, _ = m.Update(graphLoadedMsg{taskID: "etl", graph: testGraph(t, "etl")})
	if !m.loaded || m.err != nil {
		t.Fatalf("loaded = %v, err = %v", m.loaded, m.err)
	}
	if got := len(m.diagram.Order); got != 2 {
		t.Errorf("diagram has %d states, want 2", got)
	}
	if !strings.Contains(m.viewport.View(), "start") {
		t.Errorf("rendered graph missing state name:\n%s", m.viewport.View())
	}
}

// TestGraphPaneShowsLoadError verifies loader failures are rendered.
func TestGraphPaneShowsLoadError(t *testing.T) {
	m := NewGraphPaneModel()
	m.SetSize(80, 30)
	m.Show("etl")
	m, _ = m.Update(graphLoadedMsg{taskID: "etl", err: errors.New("server down")})
	if !strings.Contains(m.viewport.View(), "server down") {
		t.Errorf("error not rendered:\n%s", m.viewport.View())
	}
}

// TestModelLoadsGraphForPinnedTask verifies the pinned task's graph is requested at start.
func TestModelLoadsGraphForPinnedTask(t *testing.T) {
	var requested []string
	load := func(_ context.Context, id string) (*graph.Graph, error) {
		requested = append(requested, id)
		return testGraph(t, id), nil
	}

	m := New(make(chan watch.Update), load, "ws://localhost:3001/ws", "etl")
	if m.graphPane.TaskID() != "etl" {
		t.Fatalf("graph pane shows %q, want etl", m.graphPane.TaskID())
	}

	cmd := loadGraph(m.loadGraph, "etl")
	msg := cmd()
	m, _ = update(t, m, msg)
	if len(requested) != 1 || requested[0] != "etl" {
		t.Errorf("requested = %v, want [etl]", requested)
	}
	if !m.graphPane.loaded {
		t.Error("graph pane not loaded")
	}
}

// TestModelTracksConnectionStatus verifies status updates reach the status bar.
func TestModelTracksConnectionStatus(t *testing.T) {
	m := New(make(chan watch.Update), nil, "", "")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(t, m, watch.Update{Status: watch.StatusDisconnected, Err: errors.New("refused")})
	if m.status != watch.StatusDisconnected {
		t.Errorf("status = %q", m.status)
	}
	if cmd == nil {
		t.Error("no follow-up command to keep reading updates")
	}
	if !strings.Contains(m.View(), "refused") {
		t.Error("status bar missing disconnect cause")
	}
}

// TestModelReloadsGraphOnSave verifies a graph save for the shown task triggers a reload.
func TestModelReloadsGraphOnSave(t *testing.T) {
	calls := 0
	load := func(_ context.Context, id string) (*graph.Graph, error) {
		calls++
		return testGraph(t, id), nil
	}
	m := New(make(chan watch.Update), load, "", "etl")

	_, cmd := update(t, m, watch.Update{Event: events.TaskUpdatedEvent{Task: "etl", What: tasks.UpdatedGraph}})
	if cmd == nil {
		t.Fatal("expected commands after graph save")
	}
	runBatch(cmd)
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

// TestModelFocusCycle verifies tab cycles focus between panes.
func TestModelFocusCycle(t *testing.T) {
	m := New(make(chan watch.Update), nil, "", "")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneGraph {
		t.Errorf("focusedPane = %v, want PaneGraph", m.focusedPane)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneRuns {
		t.Errorf("focusedPane = %v, want PaneRuns", m.focusedPane)
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedPane != PaneGraph {
		t.Errorf("focusedPane = %v, want PaneGraph", m.focusedPane)
	}
}

// runBatch executes cmd, descending into batches, without blocking on
// commands that wait for push updates or timers.
func runBatch(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				runBatch(c)
			}
		}
	case <-time.After(200 * time.Millisecond):
	}
}
