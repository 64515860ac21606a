package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/layout"
)

// GraphLoader fetches a task's current graph.
type GraphLoader func(ctx context.Context, taskID string) (*graph.Graph, error)

const graphLoadTimeout = 5 * time.Second

// graphLoadedMsg carries the result of a GraphLoader call.
type graphLoadedMsg struct {
	taskID string
	graph  *graph.Graph
	err    error
}

// loadGraph returns a command that fetches taskID's graph.
func loadGraph(load GraphLoader, taskID string) tea.Cmd {
	if load == nil || taskID == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), graphLoadTimeout)
		defer cancel()
		g, err := load(ctx, taskID)
		return graphLoadedMsg{taskID: taskID, graph: g, err: err}
	}
}

// GraphPaneModel draws the selected task's state graph with its
// validation summary.
type GraphPaneModel struct {
	taskID   string
	diagram  layout.Diagram
	diags    []graph.Diagnostic
	loaded   bool
	err      error
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewGraphPaneModel creates an empty graph pane.
func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{viewport: viewport.New(0, 0)}
}

// TaskID returns the task whose graph is shown or being loaded.
func (m GraphPaneModel) TaskID() string {
	return m.taskID
}

// Show switches the pane to taskID. The content is cleared until the
// matching graphLoadedMsg arrives.
func (m *GraphPaneModel) Show(taskID string) {
	if taskID == m.taskID {
		return
	}
	m.taskID = taskID
	m.loaded = false
	m.err = nil
	m.diags = nil
	m.diagram = layout.Diagram{}
	m.refresh()
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focused {
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case graphLoadedMsg:
		// Stale result for a task no longer shown.
		if msg.taskID != m.taskID {
			break
		}
		m.loaded = true
		m.err = msg.err
		if msg.err == nil {
			m.diagram = layout.Compute(msg.graph)
			m.diags = msg.graph.Validate()
		}
		m.refresh()
	}

	return m, cmd
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(m.viewport.View())
}

func (m *GraphPaneModel) refresh() {
	var b strings.Builder

	title := "Graph"
	if m.taskID != "" {
		title = "Graph: " + m.taskID
	}
	rendered := StyleTitle.Render(title)
	b.WriteString(rendered)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(rendered)))
	b.WriteString("\n\n")

	switch {
	case m.taskID == "":
		b.WriteString(StyleStatusPending.Render("Select a task."))
	case !m.loaded:
		b.WriteString(StyleStatusPending.Render("Loading..."))
	case m.err != nil:
		b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Error: %v", m.err)))
	default:
		b.WriteString(layout.RenderTerminal(m.diagram))
		b.WriteString("\n")
		b.WriteString(renderDiagnostics(m.diags))
	}

	m.viewport.SetContent(b.String())
}

func renderDiagnostics(diags []graph.Diagnostic) string {
	if len(diags) == 0 {
		return StyleStatusComplete.Render("✓ valid") + "\n"
	}
	var b strings.Builder
	for _, d := range diags {
		var mark string
		switch d.Severity {
		case graph.SeverityError:
			mark = StyleStatusFailed.Render("✗")
		case graph.SeverityWarning:
			mark = StyleStatusRunning.Render("!")
		default:
			mark = StyleStatusPending.Render("i")
		}
		fmt.Fprintf(&b, "%s %s\n", mark, d.Detail)
	}
	return b.String()
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-2, 3)
	m.refresh()
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
