package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/tasks"
	"github.com/AnEntrypoint/sequential-gui/internal/watch"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneRuns PaneID = iota
	PaneGraph
	paneCount
)

// Model is the root Bubble Tea model for the watch dashboard.
type Model struct {
	runPane     RunPaneModel
	graphPane   GraphPaneModel
	focusedPane PaneID
	updates     <-chan watch.Update
	loadGraph   GraphLoader
	status      watch.Status
	statusErr   error
	server      string
	width       int
	height      int
	quitting    bool
}

// New creates the dashboard. updates is fed by a watch.Client; load fetches
// graphs on demand and may be nil. A non-empty task is listed and selected
// from the start.
func New(updates <-chan watch.Update, load GraphLoader, server, task string) Model {
	m := Model{
		runPane:     NewRunPaneModel(task),
		graphPane:   NewGraphPaneModel(),
		focusedPane: PaneRuns,
		updates:     updates,
		loadGraph:   load,
		status:      watch.StatusConnecting,
		server:      server,
	}
	m.graphPane.Show(m.runPane.SelectedTaskID())
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.updates),
		loadGraph(m.loadGraph, m.graphPane.TaskID()),
	)
}

// waitForUpdate returns a command that waits for the next push channel update.
func waitForUpdate(ch <-chan watch.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return u
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.NextPane):
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case key.Matches(msg, keys.PrevPane):
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case key.Matches(msg, keys.RunsPane):
			m.focusedPane = PaneRuns
			m.updateFocusStates()

		case key.Matches(msg, keys.Graph):
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		case key.Matches(msg, keys.Reload):
			cmds = append(cmds, loadGraph(m.loadGraph, m.graphPane.TaskID()))

		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneRuns:
				m.runPane, cmd = m.runPane.Update(msg)
				cmds = append(cmds, cmd, m.syncSelection())
			case PaneGraph:
				m.graphPane, cmd = m.graphPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case watch.Update:
		if msg.Event == nil {
			m.status = msg.Status
			m.statusErr = msg.Err
		} else {
			var cmd tea.Cmd
			m.runPane, cmd = m.runPane.Update(msg.Event)
			cmds = append(cmds, cmd, m.syncSelection())
			if ev, ok := msg.Event.(events.TaskUpdatedEvent); ok &&
				ev.What == tasks.UpdatedGraph && ev.Task == m.graphPane.TaskID() {
				cmds = append(cmds, loadGraph(m.loadGraph, ev.Task))
			}
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case tickMsg:
		var cmd tea.Cmd
		m.runPane, cmd = m.runPane.Update(msg)
		cmds = append(cmds, cmd)

	case graphLoadedMsg:
		var cmd tea.Cmd
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// syncSelection points the graph pane at the selected task, loading its
// graph when the selection changed.
func (m *Model) syncSelection() tea.Cmd {
	id := m.runPane.SelectedTaskID()
	if id == m.graphPane.TaskID() {
		return nil
	}
	m.graphPane.Show(id)
	return loadGraph(m.loadGraph, id)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.runPane.View(), m.graphPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusLine())
}

func (m Model) statusLine() string {
	var status string
	switch m.status {
	case watch.StatusConnected:
		status = StyleStatusComplete.Render("● connected")
	case watch.StatusDisconnected:
		status = StyleStatusFailed.Render("● disconnected")
		if m.statusErr != nil {
			status += StyleHelp.Render(" (" + m.statusErr.Error() + ")")
		}
	default:
		status = StyleStatusRunning.Render("● connecting")
	}
	if m.server != "" {
		status += StyleHelp.Render(" " + m.server)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, status, "  ", HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // status bar

	m.runPane.SetSize(leftWidth, availableHeight)
	m.graphPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.runPane.SetFocused(m.focusedPane == PaneRuns)
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
}
