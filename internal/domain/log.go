package domain

import "time"

// Log levels accepted on ingestion.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
)

// ValidLevel reports whether level is one of the accepted values.
func ValidLevel(level string) bool {
	switch level {
	case LevelError, LevelWarn, LevelInfo:
		return true
	}
	return false
}

// LogEvent is a single ingested log line. Events are immutable once stored;
// CreatedAt is the server-side ingestion time, Timestamp the event time
// supplied by the client (or assigned at insert when absent).
type LogEvent struct {
	ID        int64
	ProjectID string
	Level     string
	Message   string
	Timestamp time.Time
	Metadata  []byte
	CreatedAt time.Time
}
