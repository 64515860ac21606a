package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// Graph is the finite-state definition of one task's control flow.
// States keep their insertion order, which drives layout.
//
// Mutations check their own preconditions but never check whole-graph
// consistency; a graph may be held in an invalid state and Validate reports it.
type Graph struct {
	mu      sync.RWMutex
	id      string
	initial string
	order   []string             // state names in insertion order
	states  map[string]*StateDef // all states indexed by name
}

// New creates an empty graph. initial is recorded as given even though no
// state exists yet; Validate reports it until the state is added.
func New(id, initial string) *Graph {
	return &Graph{
		id:      id,
		initial: initial,
		states:  make(map[string]*StateDef),
	}
}

// ID returns the task identifier.
func (g *Graph) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

// SetID renames the graph. Stored documents may carry a stale or empty id;
// the task directory name wins.
func (g *Graph) SetID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

// Initial returns the name of the start state.
func (g *Graph) Initial() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.initial
}

// SetInitial reassigns the start state. The state must exist.
func (g *Graph) SetInitial(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.states[name]; !exists {
		return fmt.Errorf("state %q: %w", name, errs.ErrNotFound)
	}
	g.initial = name
	return nil
}

// Len returns the number of states.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// StateNames returns state names in insertion order.
func (g *Graph) StateNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// State returns a copy of the named state.
func (g *Graph) State(name string) (StateDef, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st, exists := g.states[name]
	if !exists {
		return StateDef{}, false
	}
	return *st, true
}

// AddState inserts an empty normal state with no transitions.
func (g *Graph) AddState(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("state name %q: %w", name, errs.ErrInvalidName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.states[name]; exists {
		return fmt.Errorf("state %q: %w", name, errs.ErrDuplicateState)
	}
	g.insert(name, StateDef{Kind: KindNormal})
	return nil
}

// DeleteState removes a state. References to it from other states are left
// in place and show up as dangling targets in Validate.
func (g *Graph) DeleteState(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.states[name]; !exists {
		return fmt.Errorf("state %q: %w", name, errs.ErrNotFound)
	}
	if name == g.initial {
		return fmt.Errorf("state %q: %w", name, errs.ErrCannotDeleteInitial)
	}

	delete(g.states, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetField updates one attribute of a state. Transition targets must be
// empty, FinalTarget, or an existing state. Marking a state final keeps its
// transitions; Validate flags the combination.
func (g *Graph) SetField(name string, field Field, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, exists := g.states[name]
	if !exists {
		return fmt.Errorf("state %q: %w", name, errs.ErrNotFound)
	}

	switch field {
	case FieldDescription:
		st.Description = value
	case FieldOnDone, FieldOnError:
		if !g.isValidTarget(value) {
			return fmt.Errorf("%s of %q -> %q: %w", field, name, value, errs.ErrInvalidTransitionTarget)
		}
		if field == FieldOnDone {
			st.OnDone = value
		} else {
			st.OnError = value
		}
	case FieldKind:
		kind, err := ParseKind(value)
		if err != nil {
			return err
		}
		st.Kind = kind
	default:
		return fmt.Errorf("field %q: %w", field, errs.ErrInvalidField)
	}
	return nil
}

// Clone returns an independent copy.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp := New(g.id, g.initial)
	for _, name := range g.order {
		cp.insert(name, *g.states[name])
	}
	return cp
}

// isValidTarget must be called with the lock held.
func (g *Graph) isValidTarget(target string) bool {
	if target == "" || target == FinalTarget {
		return true
	}
	_, exists := g.states[target]
	return exists
}

// insert must be called with the write lock held. Re-inserting an existing
// name replaces the definition but keeps its original position.
func (g *Graph) insert(name string, def StateDef) {
	if def.Kind == "" {
		def.Kind = KindNormal
	}
	if _, exists := g.states[name]; !exists {
		g.order = append(g.order, name)
	}
	st := def
	g.states[name] = &st
}
