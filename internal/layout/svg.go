package layout

import (
	"fmt"
	"html"
	"strings"
)

// Palette values fall back to fixed colors when the page defines no theme.
const (
	colorPrimary = "var(--primary, #4f46e5)"
	colorError   = "var(--error, #dc2626)"
	colorSurface = "var(--surface, #ffffff)"
	colorBorder  = "var(--border, #cbd5e1)"
	colorText    = "var(--text, #1f2937)"
)

// RenderSVG draws the diagram as a standalone SVG document. Done edges run
// from the bottom centre of the source to the top centre of the target and
// are solid; error edges run from the left middle of the source to the right
// middle of the target and are dashed.
func RenderSVG(d Diagram) string {
	var b strings.Builder

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" class="graph-svg">`+"\n",
		d.Width, d.Height, d.Width, d.Height)
	b.WriteString("<defs>\n")
	fmt.Fprintf(&b, `<marker id="arrowhead" markerWidth="10" markerHeight="10" refX="9" refY="3" orient="auto"><polygon points="0 0, 10 3, 0 6" fill="%s"/></marker>`+"\n", colorPrimary)
	fmt.Fprintf(&b, `<marker id="arrowhead-error" markerWidth="10" markerHeight="10" refX="9" refY="3" orient="auto"><polygon points="0 0, 10 3, 0 6" fill="%s"/></marker>`+"\n", colorError)
	b.WriteString("</defs>\n")

	for _, e := range d.Edges {
		writeEdge(&b, d, e)
	}
	for _, name := range d.Order {
		writeState(&b, d, name)
	}

	b.WriteString("</svg>\n")
	return b.String()
}

func writeEdge(b *strings.Builder, d Diagram, e Edge) {
	from, to := d.Positions[e.From], d.Positions[e.To]
	labelX := (from.X + to.X) / 2
	labelY := (from.Y + to.Y) / 2

	switch e.Kind {
	case EdgeDone:
		fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2" marker-end="url(#arrowhead)" class="transition-arrow"/>`+"\n",
			from.X+from.Width/2, from.Y+from.Height, to.X+to.Width/2, to.Y, colorPrimary)
		fmt.Fprintf(b, `<text x="%d" y="%d" class="transition-label" fill="%s" font-size="12">onDone</text>`+"\n",
			labelX, labelY-5, colorPrimary)
	case EdgeError:
		fmt.Fprintf(b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2" stroke-dasharray="5,5" marker-end="url(#arrowhead-error)" class="transition-arrow error"/>`+"\n",
			from.X, from.Y+from.Height/2, to.X+to.Width, to.Y+to.Height/2, colorError)
		fmt.Fprintf(b, `<text x="%d" y="%d" class="transition-label error" fill="%s" font-size="12">onError</text>`+"\n",
			labelX, labelY+10, colorError)
	}
}

func writeState(b *strings.Builder, d Diagram, name string) {
	r := d.Positions[name]
	cx, cy := r.Center()
	initial := name == d.Initial

	if d.IsFinal(name) {
		fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="35" fill="none" stroke="%s" stroke-width="2"/>`+"\n", cx, cy, colorPrimary)
		fmt.Fprintf(b, `<circle cx="%d" cy="%d" r="25" fill="%s" stroke="%s" stroke-width="2"/>`+"\n", cx, cy, colorSurface, colorPrimary)
	} else {
		stroke, width := colorBorder, 2
		if initial {
			stroke, width = colorPrimary, 3
		}
		fmt.Fprintf(b, `<rect x="%d" y="%d" width="%d" height="%d" rx="8" fill="%s" stroke="%s" stroke-width="%d"/>`+"\n",
			r.X, r.Y, r.Width, r.Height, colorSurface, stroke, width)
	}

	fmt.Fprintf(b, `<text x="%d" y="%d" text-anchor="middle" class="state-label" font-size="14" font-weight="600" fill="%s">%s</text>`+"\n",
		cx, cy+5, colorText, html.EscapeString(name))

	if initial {
		fmt.Fprintf(b, `<text x="%d" y="%d" font-size="16">&#9654;</text>`+"\n", r.X+10, r.Y+25)
	}
}
