package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
)

// Run status values shown in the task list.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// maxLogBytes caps the retained output per task; older output is dropped
// from the front.
const maxLogBytes = 1 << 20

const taskListWidth = 25

// TaskState is what the dashboard knows about one task.
type TaskState struct {
	TaskID    string
	Status    string
	Output    strings.Builder
	StartTime time.Time
	Duration  time.Duration
}

func (t *TaskState) appendOutput(s string) {
	t.Output.WriteString(s)
	if t.Output.Len() <= maxLogBytes {
		return
	}
	kept := t.Output.String()[t.Output.Len()-maxLogBytes:]
	if i := strings.IndexByte(kept, '\n'); i >= 0 {
		kept = kept[i+1:]
	}
	t.Output.Reset()
	t.Output.WriteString(kept)
}

func (t *TaskState) appendNotice(format string, args ...any) {
	out := t.Output.String()
	if out != "" && !strings.HasSuffix(out, "\n") {
		t.appendOutput("\n")
	}
	t.appendOutput(StyleNotice.Render(fmt.Sprintf(format, args...)) + "\n")
}

// RunPaneModel lists the tasks seen on the push channel and shows the
// selected task's runner output.
type RunPaneModel struct {
	tasks       map[string]*TaskState
	taskOrder   []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewRunPaneModel creates an empty run pane. A non-empty pinned task is
// listed immediately.
func NewRunPaneModel(pinned string) RunPaneModel {
	m := RunPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
	if pinned != "" {
		m.ensure(pinned)
		m.updateViewportContent()
	}
	return m
}

// tickMsg debounces viewport refreshes while output streams in.
type tickMsg struct {
	tag int
}

// Update handles messages for the run pane.
func (m RunPaneModel) Update(msg tea.Msg) (RunPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch {
		case key.Matches(msg, keys.Down):
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case key.Matches(msg, keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.RunStartEvent:
		t := m.ensure(msg.Task)
		t.Status = StatusRunning
		t.StartTime = msg.Timestamp
		t.Duration = 0
		t.appendNotice("[run started %s]", msg.Timestamp.Format(time.TimeOnly))
		m.refreshIfSelected(msg.Task)

	case events.LogEvent:
		if msg.Task == "" {
			break
		}
		t := m.ensure(msg.Task)
		t.appendOutput(msg.Data)
		if m.SelectedTaskID() == msg.Task {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.RunCompleteEvent:
		t := m.ensure(msg.Task)
		t.Status = StatusCompleted
		t.Duration = elapsed(t.StartTime, msg.Timestamp)
		t.appendNotice("[completed in %v]", t.Duration)
		m.refreshIfSelected(msg.Task)

	case events.RunErrorEvent:
		t := m.ensure(msg.Task)
		t.Status = StatusFailed
		t.Duration = elapsed(t.StartTime, msg.Timestamp)
		t.appendNotice("[failed: %s]", strings.TrimSpace(msg.Error))
		m.refreshIfSelected(msg.Task)

	case events.ArtifactChangedEvent:
		t := m.ensure(msg.Task)
		t.appendNotice("[artifact %s %s%s]", msg.Op, msg.Scope, msg.Path)
		m.refreshIfSelected(msg.Task)

	case events.TaskUpdatedEvent:
		t := m.ensure(msg.Task)
		t.appendNotice("[%s saved]", msg.What)
		m.refreshIfSelected(msg.Task)

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the run pane.
func (m RunPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(m.width-taskListWidth-4).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m RunPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.taskOrder {
		name := id
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(m.tasks[id].Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// SelectedTaskID returns the task under the cursor, or "".
func (m RunPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Task returns the state for id.
func (m RunPaneModel) Task(id string) (*TaskState, bool) {
	t, ok := m.tasks[id]
	return t, ok
}

func (m *RunPaneModel) ensure(id string) *TaskState {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskState{TaskID: id, Status: StatusIdle}
	m.tasks[id] = t
	m.taskOrder = append(m.taskOrder, id)
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
		m.updateViewportContent()
	}
	return t
}

func (m *RunPaneModel) refreshIfSelected(id string) {
	if m.SelectedTaskID() == id {
		m.updateViewportContent()
	}
}

func (m *RunPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for runs...")
		return
	}
	if t.Output.Len() == 0 {
		m.viewport.SetContent(StyleStatusPending.Render("No output yet."))
		return
	}
	m.viewport.SetContent(t.Output.String())
	m.viewport.GotoBottom()
}

func (m *RunPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-taskListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *RunPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *RunPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func elapsed(start, end time.Time) time.Duration {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return end.Sub(start).Round(time.Millisecond)
}
