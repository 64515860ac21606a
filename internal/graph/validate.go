package graph

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// Severity ranks a diagnostic. Only SeverityError makes a graph invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic codes reported by Validate.
const (
	CodeMissingInitial      = "missing_initial"
	CodeDanglingTarget      = "dangling_target"
	CodeFinalHasTransitions = "final_has_transitions"
	CodeUnreachable         = "unreachable"
	CodeNoFinalState        = "no_final_state"
	CodeMultipleFinalStates = "multiple_final_states"
	CodeCycle               = "cycle"
)

// Diagnostic is one finding of Validate.
type Diagnostic struct {
	Code     string   `json:"code"`
	State    string   `json:"stateName,omitempty"`
	Detail   string   `json:"detail"`
	Severity Severity `json:"severity"`
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate inspects the whole graph. Findings are returned in a stable order:
// initial, per-state findings in insertion order, reachability, final counts,
// cycles.
func (g *Graph) Validate() []Diagnostic {
	g.mu.RLock()
	defer g.mu.RUnlock()

	diags := []Diagnostic{}

	_, initialExists := g.states[g.initial]
	if !initialExists {
		diags = append(diags, Diagnostic{
			Code:     CodeMissingInitial,
			State:    g.initial,
			Detail:   fmt.Sprintf("initial state %q is not defined", g.initial),
			Severity: SeverityError,
		})
	}

	finals := []string{}
	for _, name := range g.order {
		st := g.states[name]
		for _, tr := range []struct {
			field  Field
			target string
		}{{FieldOnDone, st.OnDone}, {FieldOnError, st.OnError}} {
			if tr.target == "" || tr.target == FinalTarget {
				continue
			}
			if _, exists := g.states[tr.target]; !exists {
				diags = append(diags, Diagnostic{
					Code:     CodeDanglingTarget,
					State:    name,
					Detail:   fmt.Sprintf("%s targets undefined state %q", tr.field, tr.target),
					Severity: SeverityError,
				})
			}
		}
		if st.IsFinal() {
			finals = append(finals, name)
			if st.OnDone != "" || st.OnError != "" {
				diags = append(diags, Diagnostic{
					Code:     CodeFinalHasTransitions,
					State:    name,
					Detail:   "final state has outgoing transitions",
					Severity: SeverityError,
				})
			}
		}
	}

	if initialExists {
		reached := g.reachableFrom(g.initial)
		for _, name := range g.order {
			if !reached[name] {
				diags = append(diags, Diagnostic{
					Code:     CodeUnreachable,
					State:    name,
					Detail:   fmt.Sprintf("state %q cannot be reached from %q", name, g.initial),
					Severity: SeverityWarning,
				})
			}
		}
	}

	switch {
	case len(finals) == 0 && len(g.order) > 0:
		diags = append(diags, Diagnostic{
			Code:     CodeNoFinalState,
			Detail:   "no state is marked final; the workflow never terminates on its own",
			Severity: SeverityInfo,
		})
	case len(finals) > 1:
		diags = append(diags, Diagnostic{
			Code:     CodeMultipleFinalStates,
			Detail:   fmt.Sprintf("%d final states: %s", len(finals), strings.Join(finals, ", ")),
			Severity: SeverityInfo,
		})
	}

	if err := g.checkAcyclic(); err != nil {
		diags = append(diags, Diagnostic{
			Code:     CodeCycle,
			Detail:   err.Error(),
			Severity: SeverityInfo,
		})
	}

	return diags
}

// reachableFrom walks existing transition targets breadth-first.
// Must be called with the read lock held.
func (g *Graph) reachableFrom(start string) map[string]bool {
	reached := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.states[cur].targets() {
			if _, exists := g.states[next]; !exists || reached[next] {
				continue
			}
			reached[next] = true
			queue = append(queue, next)
		}
	}
	return reached
}

// checkAcyclic runs a topological sort over transitions between existing
// states. Cycles are legal in a state machine (retry loops); callers only
// report them. Must be called with the read lock held.
func (g *Graph) checkAcyclic() error {
	var edges []toposort.Edge
	for _, name := range g.order {
		outgoing := 0
		for _, next := range g.states[name].targets() {
			if _, exists := g.states[next]; !exists {
				continue
			}
			edges = append(edges, toposort.Edge{name, next})
			outgoing++
		}
		if outgoing == 0 {
			edges = append(edges, toposort.Edge{nil, name})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("transitions contain a cycle: %w", err)
	}
	return nil
}
