package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds the dashboard bindings.
type keyMap struct {
	NextPane key.Binding
	PrevPane key.Binding
	RunsPane key.Binding
	Graph    key.Binding
	Up       key.Binding
	Down     key.Binding
	Reload   key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "cycle focus")),
	PrevPane: key.NewBinding(key.WithKeys("shift+tab")),
	RunsPane: key.NewBinding(key.WithKeys("1"), key.WithHelp("1/2", "jump to pane")),
	Graph:    key.NewBinding(key.WithKeys("2")),
	Up:       key.NewBinding(key.WithKeys("k", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/k", "select task")),
	Reload:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload graph")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// HelpView returns the one-line key help shown in the status bar.
func HelpView() string {
	var parts []string
	for _, b := range []key.Binding{keys.NextPane, keys.RunsPane, keys.Down, keys.Reload, keys.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return StyleHelp.Render(strings.Join(parts, " | "))
}
