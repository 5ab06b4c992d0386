package logs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IngestInput is one decoded ingestion request.
type IngestInput struct {
	ProjectID string
	Level     string
	Message   string
	Timestamp *time.Time
	// Metadata is the JSON object formed by every payload key other than
	// project-id, level, message and timestamp, values verbatim.
	Metadata []byte
	// Origin is the request's declared origin (Origin or Referer header);
	// empty for non-browser callers.
	Origin string
}

// DecodePayload parses an ingestion request body. Known fields are lifted
// explicitly; all remaining keys are re-marshalled untouched as the event
// metadata, so SDK callers can attach arbitrary context at the top level.
func DecodePayload(data []byte) (IngestInput, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return IngestInput{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidInput)
	}

	var input IngestInput
	var err error
	if input.ProjectID, err = stringField(fields, "project-id"); err != nil {
		return IngestInput{}, err
	}
	if input.Level, err = stringField(fields, "level"); err != nil {
		return IngestInput{}, err
	}
	if input.Message, err = stringField(fields, "message"); err != nil {
		return IngestInput{}, err
	}

	if raw, ok := fields["timestamp"]; ok {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return IngestInput{}, fmt.Errorf("%w: timestamp must be a string", ErrInvalidInput)
		}
		parsed, err := ParseTimestamp(value)
		if err != nil {
			return IngestInput{}, err
		}
		input.Timestamp = &parsed
	}

	delete(fields, "project-id")
	delete(fields, "level")
	delete(fields, "message")
	delete(fields, "timestamp")
	if len(fields) > 0 {
		metadata, err := json.Marshal(fields)
		if err != nil {
			return IngestInput{}, fmt.Errorf("%w: metadata not serializable", ErrInvalidInput)
		}
		input.Metadata = metadata
	}
	return input, nil
}

// ParseTimestamp parses an ISO 8601 / RFC 3339 timestamp. Malformed values
// are rejected rather than silently coerced.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparsable timestamp %q", ErrInvalidInput, value)
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: missing required fields: project-id, level, message", ErrInvalidInput)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, key)
	}
	return value, nil
}
