package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicRun      = "run"
	TopicLog      = "log"
	TopicArtifact = "artifact"
	TopicTask     = "task"
)

// Event type constants. These are also the "type" field on the wire.
const (
	EventTypeRunStart        = "runStart"
	EventTypeRunComplete     = "runComplete"
	EventTypeRunError        = "runError"
	EventTypeLog             = "log"
	EventTypeArtifactChanged = "artifactChanged"
	EventTypeTaskUpdated     = "taskUpdated"
)

// RunStartEvent is published when the runner is launched for a task.
type RunStartEvent struct {
	Task      string    `json:"taskId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e RunStartEvent) EventType() string { return EventTypeRunStart }
func (e RunStartEvent) Topic() string     { return TopicRun }
func (e RunStartEvent) TaskID() string    { return e.Task }

// RunCompleteEvent is published when the runner exits successfully.
type RunCompleteEvent struct {
	Task      string    `json:"taskId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e RunCompleteEvent) EventType() string { return EventTypeRunComplete }
func (e RunCompleteEvent) Topic() string     { return TopicRun }
func (e RunCompleteEvent) TaskID() string    { return e.Task }

// RunErrorEvent is published when the runner fails or cannot be started.
type RunErrorEvent struct {
	Task      string    `json:"taskId"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (e RunErrorEvent) EventType() string { return EventTypeRunError }
func (e RunErrorEvent) Topic() string     { return TopicRun }
func (e RunErrorEvent) TaskID() string    { return e.Task }

// LogEvent carries one raw output chunk from the runner.
type LogEvent struct {
	Task      string    `json:"taskId,omitempty"`
	Stream    string    `json:"stream,omitempty"` // "stdout" or "stderr"
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func (e LogEvent) EventType() string { return EventTypeLog }
func (e LogEvent) Topic() string     { return TopicLog }
func (e LogEvent) TaskID() string    { return e.Task }

// Artifact operations reported by ArtifactChangedEvent.
const (
	OpWrite  = "write"
	OpDelete = "delete"
)

// ArtifactChangedEvent is published after a successful write or delete in
// the artifact store.
type ArtifactChangedEvent struct {
	Task      string    `json:"taskId"`
	Scope     string    `json:"scope"`
	Path      string    `json:"path"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ArtifactChangedEvent) EventType() string { return EventTypeArtifactChanged }
func (e ArtifactChangedEvent) Topic() string     { return TopicArtifact }
func (e ArtifactChangedEvent) TaskID() string    { return e.Task }

// TaskUpdatedEvent is published when a task's code, config or graph is saved.
type TaskUpdatedEvent struct {
	Task      string    `json:"taskId"`
	What      string    `json:"what"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TaskUpdatedEvent) EventType() string { return EventTypeTaskUpdated }
func (e TaskUpdatedEvent) Topic() string     { return TopicTask }
func (e TaskUpdatedEvent) TaskID() string    { return e.Task }
