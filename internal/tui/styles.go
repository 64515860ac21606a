package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorDim    = lipgloss.Color("245")
)

func paneBorder(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}

var (
	StyleFocusedBorder   = paneBorder(colorAccent)
	StyleUnfocusedBorder = paneBorder(colorMuted)
)

var (
	StyleStatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	StyleStatusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	StyleStatusPending  = lipgloss.NewStyle().Foreground(colorMuted)

	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	StyleNotice   = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
)

// statusGlyphs maps a run status to its task list marker.
var statusGlyphs = map[string]struct {
	glyph string
	style lipgloss.Style
}{
	StatusRunning:   {"●", StyleStatusRunning},
	StatusCompleted: {"✓", StyleStatusComplete},
	StatusFailed:    {"✗", StyleStatusFailed},
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	if g, ok := statusGlyphs[status]; ok {
		return g.style.Render(g.glyph)
	}
	return StyleStatusPending.Render("○")
}
