// Package layout derives a renderable diagram from a workflow graph.
//
// Compute is a pure function of the graph: states are placed on a fixed grid
// in insertion order, so the same graph always yields the same diagram.
package layout

import (
	"math"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
)

// Grid constants.
const (
	OriginX   = 100
	OriginY   = 100
	ColStep   = 200
	RowStep   = 150
	BoxWidth  = 150
	BoxHeight = 60

	MinCanvasWidth  = 800
	MinCanvasHeight = 500
	CanvasMargin    = 50
)

// EdgeKind tells done transitions from error transitions.
type EdgeKind string

const (
	EdgeDone  EdgeKind = "done"
	EdgeError EdgeKind = "error"
)

// Rect is a state's box in canvas coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Edge is one drawable transition.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Diagram is the laid-out graph.
type Diagram struct {
	Order     []string        `json:"order"`
	Positions map[string]Rect `json:"positions"`
	Edges     []Edge          `json:"edges"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Initial   string          `json:"initial"`
	Finals    map[string]bool `json:"finals"`
}

// IsFinal reports whether name is drawn as a terminal state.
func (d Diagram) IsFinal(name string) bool {
	return d.Finals[name]
}

// Columns returns the grid width used for n states.
func Columns(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// Compute lays out g. Edges come in state order with a state's done edge
// before its error edge; transitions to "_final" or to states that do not
// exist are not drawn.
func Compute(g *graph.Graph) Diagram {
	snap := g.Clone()
	names := snap.StateNames()
	cols := Columns(len(names))

	d := Diagram{
		Order:     names,
		Positions: make(map[string]Rect, len(names)),
		Edges:     []Edge{},
		Width:     MinCanvasWidth,
		Height:    MinCanvasHeight,
		Initial:   snap.Initial(),
		Finals:    make(map[string]bool),
	}

	for i, name := range names {
		r := Rect{
			X:      OriginX + (i%cols)*ColStep,
			Y:      OriginY + (i/cols)*RowStep,
			Width:  BoxWidth,
			Height: BoxHeight,
		}
		d.Positions[name] = r
		d.Width = max(d.Width, r.X+r.Width+CanvasMargin)
		d.Height = max(d.Height, r.Y+r.Height+CanvasMargin)
	}

	for _, name := range names {
		st, _ := snap.State(name)
		if st.IsFinal() {
			d.Finals[name] = true
		}
		d.addEdge(name, st.OnDone, EdgeDone)
		d.addEdge(name, st.OnError, EdgeError)
	}
	return d
}

func (d *Diagram) addEdge(from, to string, kind EdgeKind) {
	if to == "" || to == graph.FinalTarget {
		return
	}
	if _, ok := d.Positions[to]; !ok {
		return
	}
	d.Edges = append(d.Edges, Edge{From: from, To: to, Kind: kind})
}
