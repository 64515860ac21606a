package graph

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// hclWorkflow is the HCL authoring format:
//
//	initial = "fetch"
//
//	state "fetch" {
//	  description = "download the report"
//	  on_done     = "store"
//	  on_error    = "_final"
//	}
//
//	state "store" {
//	  final = true
//	}
type hclWorkflow struct {
	ID      string     `hcl:"id,optional"`
	Initial string     `hcl:"initial"`
	States  []hclState `hcl:"state,block"`
}

type hclState struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
	Final       bool   `hcl:"final,optional"`
	OnDone      string `hcl:"on_done,optional"`
	OnError     string `hcl:"on_error,optional"`
}

// ParseHCL decodes a workflow written in HCL. Block order becomes state
// order. filename selects the syntax (".hcl" native, ".json" HCL-JSON) and
// is used in diagnostics. id overrides the file's id when non-empty.
func ParseHCL(id, filename string, src []byte) (*Graph, error) {
	var wf hclWorkflow
	if err := hclsimple.Decode(filename, src, nil, &wf); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	if id == "" {
		id = wf.ID
	}

	g := New(id, wf.Initial)
	for _, st := range wf.States {
		if err := g.AddState(st.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	// Transitions are set after all states exist so forward references work.
	for _, st := range wf.States {
		if st.Description != "" {
			if err := g.SetField(st.Name, FieldDescription, st.Description); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}
		if st.OnDone != "" {
			if err := g.SetField(st.Name, FieldOnDone, st.OnDone); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}
		if st.OnError != "" {
			if err := g.SetField(st.Name, FieldOnError, st.OnError); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}
		if st.Final {
			if err := g.SetField(st.Name, FieldKind, string(KindFinal)); err != nil {
				return nil, fmt.Errorf("%s: %w", filename, err)
			}
		}
	}
	if _, ok := g.State(wf.Initial); !ok {
		return nil, fmt.Errorf("%s: initial state %q: %w", filename, wf.Initial, errs.ErrNotFound)
	}
	return g, nil
}
