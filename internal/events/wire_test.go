package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestEncodeShape verifies the push-channel message layout.
func TestEncodeShape(t *testing.T) {
	data, err := Encode(RunErrorEvent{Task: "t1", Error: "exit status 1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"type":"runError",`) {
		t.Errorf("expected type first, got %s", data)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	if m["taskId"] != "t1" || m["error"] != "exit status 1" {
		t.Errorf("unexpected fields: %v", m)
	}
}

// TestDecode tests decoding of every event kind.
func TestDecode(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []Event{
		RunStartEvent{Task: "a", Timestamp: ts},
		RunCompleteEvent{Task: "a", Timestamp: ts},
		RunErrorEvent{Task: "a", Error: "bad", Timestamp: ts},
		LogEvent{Task: "a", Stream: "stderr", Data: "line\n", Timestamp: ts},
		ArtifactChangedEvent{Task: "a", Scope: "run", Path: "/out/x.json", Op: OpWrite, Timestamp: ts},
		TaskUpdatedEvent{Task: "a", What: "code", Timestamp: ts},
	}

	for _, want := range tests {
		t.Run(want.EventType(), func(t *testing.T) {
			data, err := Encode(want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode(%s): %v", data, err)
			}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

// TestDecodeErrors tests rejection of unknown or broken messages.
func TestDecodeErrors(t *testing.T) {
	for _, msg := range []string{`not json`, `{"type":"mystery"}`, `{"type":"runError","error":5}`} {
		if _, err := Decode([]byte(msg)); err == nil {
			t.Errorf("Decode(%s): expected error", msg)
		}
	}
}
