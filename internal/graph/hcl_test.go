package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

const sampleHCL = `
id      = "nightly"
initial = "fetch"

state "fetch" {
  description = "download the report"
  on_done     = "store"
  on_error    = "notify"
}

state "store" {
  on_done = "done"
}

state "notify" {
  on_done = "_final"
}

state "done" {
  final = true
}
`

// TestParseHCL tests decoding of the HCL authoring format.
func TestParseHCL(t *testing.T) {
	g, err := ParseHCL("", "nightly.hcl", []byte(sampleHCL))
	if err != nil {
		t.Fatalf("ParseHCL: %v", err)
	}
	if g.ID() != "nightly" || g.Initial() != "fetch" {
		t.Errorf("unexpected header id=%q initial=%q", g.ID(), g.Initial())
	}
	if want := []string{"fetch", "store", "notify", "done"}; !reflect.DeepEqual(g.StateNames(), want) {
		t.Errorf("expected block order %v, got %v", want, g.StateNames())
	}
	fetch, _ := g.State("fetch")
	if fetch.Description != "download the report" || fetch.OnDone != "store" || fetch.OnError != "notify" {
		t.Errorf("unexpected fetch state: %+v", fetch)
	}
	done, _ := g.State("done")
	if !done.IsFinal() {
		t.Error("expected done to be final")
	}
	if diags := g.Validate(); HasErrors(diags) {
		t.Errorf("unexpected errors: %+v", diags)
	}
}

// TestParseHCLErrors tests rejection of inconsistent workflows.
func TestParseHCLErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "duplicate state",
			src:     "initial = \"a\"\nstate \"a\" {}\nstate \"a\" {}\n",
			wantErr: errs.ErrDuplicateState,
		},
		{
			name:    "unknown target",
			src:     "initial = \"a\"\nstate \"a\" {\n  on_done = \"b\"\n}\n",
			wantErr: errs.ErrInvalidTransitionTarget,
		},
		{
			name:    "initial not declared",
			src:     "initial = \"z\"\nstate \"a\" {}\n",
			wantErr: errs.ErrNotFound,
		},
		{
			name: "syntax error",
			src:  "initial = \n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHCL("x", "x.hcl", []byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
