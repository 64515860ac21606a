package graph

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// TestPortableRoundTrip verifies encode/decode keeps every field and the order.
func TestPortableRoundTrip(t *testing.T) {
	g := New("report", "zeta")
	mustAdd(t, g, "zeta", "alpha", "mid", "end")
	mustSet(t, g, "zeta", FieldDescription, "first, despite the name")
	mustSet(t, g, "zeta", FieldOnDone, "alpha")
	mustSet(t, g, "zeta", FieldOnError, "end")
	mustSet(t, g, "alpha", FieldOnDone, "mid")
	mustSet(t, g, "alpha", FieldOnError, "alpha")
	mustSet(t, g, "mid", FieldOnDone, FinalTarget)
	mustSet(t, g, "end", FieldKind, "final")

	data, err := g.ToPortable()
	if err != nil {
		t.Fatalf("ToPortable: %v", err)
	}

	back, err := ParsePortable(data)
	if err != nil {
		t.Fatalf("ParsePortable: %v", err)
	}
	if back.ID() != "report" || back.Initial() != "zeta" {
		t.Errorf("header mismatch: id=%q initial=%q", back.ID(), back.Initial())
	}
	if !reflect.DeepEqual(back.StateNames(), g.StateNames()) {
		t.Errorf("order mismatch: want %v, got %v", g.StateNames(), back.StateNames())
	}
	for _, name := range g.StateNames() {
		want, _ := g.State(name)
		got, _ := back.State(name)
		if want != got {
			t.Errorf("state %q: want %+v, got %+v", name, want, got)
		}
	}

	again, err := back.ToPortable()
	if err != nil {
		t.Fatalf("ToPortable: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("second encoding differs:\n%s\n%s", data, again)
	}
}

// TestPortableKindKey verifies kind is stored under "type" and omitted for normal states.
func TestPortableKindKey(t *testing.T) {
	g := New("t", "start")
	mustAdd(t, g, "start", "done")
	mustSet(t, g, "done", FieldKind, "final")

	data, err := g.ToPortable()
	if err != nil {
		t.Fatalf("ToPortable: %v", err)
	}
	s := string(data)
	if strings.Count(s, `"type"`) != 1 || !strings.Contains(s, `"type": "final"`) {
		t.Errorf("expected exactly one type key for the final state, got:\n%s", s)
	}
}

// TestParsePortableEditorDocument reads the shape written by the web editor.
func TestParsePortableEditorDocument(t *testing.T) {
	doc := `{
  "id": "etl",
  "initial": "start",
  "states": {
    "start": {"description": "", "onDone": "load", "onError": ""},
    "load": {"description": "pull rows", "onDone": "done", "onError": "start"},
    "done": {"description": "", "type": "final", "onDone": "", "onError": ""}
  }
}`
	g, err := ParsePortable([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePortable: %v", err)
	}
	if want := []string{"start", "load", "done"}; !reflect.DeepEqual(g.StateNames(), want) {
		t.Errorf("expected order %v, got %v", want, g.StateNames())
	}
	load, _ := g.State("load")
	if load.Description != "pull rows" || load.OnError != "start" {
		t.Errorf("unexpected load state: %+v", load)
	}
	done, _ := g.State("done")
	if !done.IsFinal() {
		t.Error("expected done to be final")
	}
	if diags := g.Validate(); HasErrors(diags) {
		t.Errorf("unexpected errors: %+v", diags)
	}
}

// TestFromPortableLenient tests recovery from unusable documents.
func TestFromPortableLenient(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		wantID      string
		wantInitial string
	}{
		{name: "not json", doc: `{{{`, wantID: "", wantInitial: DefaultInitial},
		{name: "missing states", doc: `{"id":"x","initial":"go"}`, wantID: "x", wantInitial: "go"},
		{name: "null states", doc: `{"id":"x","initial":"go","states":null}`, wantID: "x", wantInitial: "go"},
		{name: "states is array", doc: `{"id":"x","states":[]}`, wantID: "x", wantInitial: DefaultInitial},
		{name: "bad state value", doc: `{"id":"x","initial":"a","states":{"a":5}}`, wantID: "x", wantInitial: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePortable([]byte(tt.doc)); !errors.Is(err, errs.ErrMalformedDocument) {
				t.Errorf("expected ErrMalformedDocument from strict parse, got %v", err)
			}
			g := FromPortable([]byte(tt.doc))
			if g.Len() != 0 {
				t.Errorf("expected empty graph, got %v", g.StateNames())
			}
			if g.ID() != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, g.ID())
			}
			if g.Initial() != tt.wantInitial {
				t.Errorf("expected initial %q, got %q", tt.wantInitial, g.Initial())
			}
		})
	}
}

// TestFromPortableKeepsWellTypedStates verifies a wrongly typed field costs
// only that field and a non-object state costs only that state.
func TestFromPortableKeepsWellTypedStates(t *testing.T) {
	doc := `{"id":"etl","initial":"start","states":{
		"start":{"description":7,"onDone":"load","onError":""},
		"load":{"description":"pull","onDone":"done","onError":["x"]},
		"broken":"oops",
		"done":{"type":"final"}}}`

	if _, err := ParsePortable([]byte(doc)); !errors.Is(err, errs.ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument from strict parse, got %v", err)
	}

	g := FromPortable([]byte(doc))
	if want := []string{"start", "load", "done"}; !reflect.DeepEqual(g.StateNames(), want) {
		t.Fatalf("expected %v, got %v", want, g.StateNames())
	}
	start, _ := g.State("start")
	if start.Description != "" || start.OnDone != "load" {
		t.Errorf("unexpected start state: %+v", start)
	}
	load, _ := g.State("load")
	if load.Description != "pull" || load.OnError != "" {
		t.Errorf("unexpected load state: %+v", load)
	}
	if done, _ := g.State("done"); !done.IsFinal() {
		t.Error("expected done to be final")
	}
}

// TestPortableInitialKey verifies the default initial state applies only
// when the key is absent.
func TestPortableInitialKey(t *testing.T) {
	g := New("t", "")
	mustAdd(t, g, "a")
	data, err := g.ToPortable()
	if err != nil {
		t.Fatalf("ToPortable: %v", err)
	}
	back, err := ParsePortable(data)
	if err != nil {
		t.Fatalf("ParsePortable: %v", err)
	}
	if back.Initial() != "" {
		t.Errorf("expected empty initial to survive, got %q", back.Initial())
	}

	back, err = ParsePortable([]byte(`{"id":"t","states":{}}`))
	if err != nil {
		t.Fatalf("ParsePortable: %v", err)
	}
	if back.Initial() != DefaultInitial {
		t.Errorf("expected %q when initial is absent, got %q", DefaultInitial, back.Initial())
	}
}
