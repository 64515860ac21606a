package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// stateDoc is the persisted shape of a StateDef. Kind is stored as "type"
// and omitted for normal states.
type stateDoc struct {
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	OnDone      string `json:"onDone"`
	OnError     string `json:"onError"`
}

// graphDoc is the top-level persisted shape. States is kept raw so its key
// order can be read back.
type graphDoc struct {
	ID      string          `json:"id"`
	Initial string          `json:"initial"`
	States  json.RawMessage `json:"states"`
}

// ToPortable encodes the graph as an indented JSON document whose "states"
// object lists states in insertion order.
func (g *Graph) ToPortable() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var states bytes.Buffer
	states.WriteByte('{')
	for i, name := range g.order {
		if i > 0 {
			states.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("encoding state name %q: %w", name, err)
		}
		st := g.states[name]
		doc := stateDoc{
			Description: st.Description,
			OnDone:      st.OnDone,
			OnError:     st.OnError,
		}
		if st.IsFinal() {
			doc.Type = string(KindFinal)
		}
		val, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding state %q: %w", name, err)
		}
		states.Write(key)
		states.WriteByte(':')
		states.Write(val)
	}
	states.WriteByte('}')

	compact, err := json.Marshal(graphDoc{ID: g.id, Initial: g.initial, States: states.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("encoding graph %q: %w", g.id, err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting graph %q: %w", g.id, err)
	}
	return out.Bytes(), nil
}

// ParsePortable strictly decodes a graph document. It fails with
// ErrMalformedDocument when the JSON is unreadable, "states" is missing or
// any field has the wrong type. Transition targets are not checked; that
// is Validate's job.
func ParsePortable(data []byte) (*Graph, error) {
	return parsePortable(data, true)
}

// FromPortable is the lenient reader used for stored documents. Unreadable
// JSON yields an empty graph with the default initial state. A wrongly
// typed field reads as its zero value and a state that is not an object is
// skipped; the remaining states are kept.
func FromPortable(data []byte) *Graph {
	g, err := parsePortable(data, false)
	if err == nil {
		return g
	}
	if g == nil {
		return New("", DefaultInitial)
	}
	return New(g.id, g.initial)
}

func parsePortable(data []byte, strict bool) (*Graph, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: document is not an object", errs.ErrMalformedDocument)
	}

	var id string
	if err := stringField(top, "id", &id); err != nil && strict {
		return nil, err
	}
	// The default applies only when "initial" is absent; "" round-trips.
	initial := DefaultInitial
	if _, ok := top["initial"]; ok {
		if err := stringField(top, "initial", &initial); err != nil {
			if strict {
				return nil, err
			}
			initial = DefaultInitial
		}
	}
	g := New(id, initial)

	raw := top["states"]
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return g, fmt.Errorf("%w: missing states", errs.ErrMalformedDocument)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return g, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return g, fmt.Errorf("%w: states is not an object", errs.ErrMalformedDocument)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return g, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
		}
		name, _ := keyTok.(string)

		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil || fields == nil {
			if strict {
				return g, fmt.Errorf("%w: state %q is not an object", errs.ErrMalformedDocument, name)
			}
			continue
		}
		var sd stateDoc
		for key, dst := range map[string]*string{
			"description": &sd.Description,
			"type":        &sd.Type,
			"onDone":      &sd.OnDone,
			"onError":     &sd.OnError,
		} {
			if err := stringField(fields, key, dst); err != nil {
				if strict {
					return g, fmt.Errorf("state %q: %w", name, err)
				}
				*dst = ""
			}
		}
		kind := KindNormal
		if sd.Type == string(KindFinal) {
			kind = KindFinal
		}
		g.insert(name, StateDef{
			Description: sd.Description,
			Kind:        kind,
			OnDone:      sd.OnDone,
			OnError:     sd.OnError,
		})
	}
	return g, nil
}

// stringField decodes fields[key] into dst when present. null leaves dst
// unchanged.
func stringField(fields map[string]json.RawMessage, key string, dst *string) error {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: field %q is not a string", errs.ErrMalformedDocument, key)
	}
	return nil
}
