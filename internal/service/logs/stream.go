package logs

import (
	"encoding/json"
	"time"

	"github.com/martijnd/featherlog/internal/domain"
)

// ConnectedFrame is the first frame every stream connection receives.
var ConnectedFrame = []byte(`{"type":"connected"}`)

// EventPayload renders a log event in the wire shape shared by the query
// response and the stream frames.
func EventPayload(ev domain.LogEvent) map[string]any {
	metadata := json.RawMessage(ev.Metadata)
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	return map[string]any{
		"id":         ev.ID,
		"project-id": ev.ProjectID,
		"level":      ev.Level,
		"message":    ev.Message,
		"timestamp":  ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"metadata":   metadata,
	}
}

// MarshalStreamFrame renders the {"type":"log","log":{...}} frame pushed to
// live stream subscribers.
func MarshalStreamFrame(ev domain.LogEvent) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "log",
		"log":  EventPayload(ev),
	})
}
