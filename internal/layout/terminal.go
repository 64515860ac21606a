package layout

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const terminalBoxWidth = 18

var (
	boxNormal = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Width(terminalBoxWidth).
			Align(lipgloss.Center)

	boxInitial = boxNormal.
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("62"))

	boxFinal = boxNormal.
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("62"))

	edgeDoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	edgeErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("red"))
	gapStyle       = lipgloss.NewStyle().PaddingRight(2)
)

// RenderTerminal draws the same grid as Compute using box characters, then
// lists the edges beneath it. Done edges use a solid arrow, error edges a
// dashed one.
func RenderTerminal(d Diagram) string {
	if len(d.Order) == 0 {
		return "No states defined yet.\n"
	}

	cols := Columns(len(d.Order))
	var rows []string
	for start := 0; start < len(d.Order); start += cols {
		end := min(start+cols, len(d.Order))
		var boxes []string
		for _, name := range d.Order[start:end] {
			boxes = append(boxes, gapStyle.Render(terminalBox(d, name)))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	b.WriteString("\n")
	for _, e := range d.Edges {
		switch e.Kind {
		case EdgeDone:
			b.WriteString(edgeDoneStyle.Render(fmt.Sprintf("%s ──▶ %s", e.From, e.To)))
		case EdgeError:
			b.WriteString(edgeErrorStyle.Render(fmt.Sprintf("%s ╌╌▶ %s (error)", e.From, e.To)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func terminalBox(d Diagram, name string) string {
	label := name
	if name == d.Initial {
		label = "▶ " + label
	}
	switch {
	case d.IsFinal(name):
		return boxFinal.Render(label)
	case name == d.Initial:
		return boxInitial.Render(label)
	default:
		return boxNormal.Render(label)
	}
}
