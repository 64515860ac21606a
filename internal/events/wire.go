package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Encode renders an event as the push-channel message: the event's own JSON
// object with a leading "type" field.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.EventType(), err)
	}
	typ, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.EventType(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses a push-channel message back into its concrete event type.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	var ev Event
	var err error
	switch head.Type {
	case EventTypeRunStart:
		var e RunStartEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventTypeRunComplete:
		var e RunCompleteEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventTypeRunError:
		var e RunErrorEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventTypeLog:
		var e LogEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventTypeArtifactChanged:
		var e ArtifactChangedEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventTypeTaskUpdated:
		var e TaskUpdatedEvent
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("decoding event: unknown type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", head.Type, err)
	}
	return ev, nil
}
