package graph

import (
	"fmt"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// Kind distinguishes terminal states from ordinary ones.
type Kind string

const (
	KindNormal Kind = "normal"
	KindFinal  Kind = "final"
)

// FinalTarget is the pseudo-target meaning "the workflow ends here".
const FinalTarget = "_final"

// DefaultInitial is used when a document does not name its initial state.
const DefaultInitial = "start"

// ParseKind maps the persisted/editor value to a Kind.
// The editor clears the final flag by writing an empty string.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", string(KindNormal):
		return KindNormal, nil
	case string(KindFinal):
		return KindFinal, nil
	default:
		return "", fmt.Errorf("kind %q: %w", s, errs.ErrInvalidField)
	}
}

// Field names a mutable attribute of a state.
type Field string

const (
	FieldDescription Field = "description"
	FieldOnDone      Field = "onDone"
	FieldOnError     Field = "onError"
	FieldKind        Field = "kind"
)

// ParseField accepts the field names used by the editor. "type" is the
// persisted spelling of kind.
func ParseField(s string) (Field, error) {
	switch s {
	case "description":
		return FieldDescription, nil
	case "onDone":
		return FieldOnDone, nil
	case "onError":
		return FieldOnError, nil
	case "kind", "type":
		return FieldKind, nil
	default:
		return "", fmt.Errorf("field %q: %w", s, errs.ErrInvalidField)
	}
}

// StateDef is one node of a task's workflow.
type StateDef struct {
	Description string
	Kind        Kind
	OnDone      string // "", FinalTarget, or a state name
	OnError     string // "", FinalTarget, or a state name
}

// IsFinal reports whether the state is terminal.
func (s StateDef) IsFinal() bool {
	return s.Kind == KindFinal
}

// targets returns the non-empty transition targets in done, error order.
func (s StateDef) targets() []string {
	var out []string
	if s.OnDone != "" {
		out = append(out, s.OnDone)
	}
	if s.OnError != "" {
		out = append(out, s.OnError)
	}
	return out
}
