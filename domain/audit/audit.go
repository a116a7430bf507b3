// Package audit provides the persisted log entry type.
// Entries are for operators and debugging; no decision reads them.
package audit

import (
	"strings"
	"time"
)

// Level is the severity of an audit entry.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Entry is a single audit log line (immutable value type).
type Entry struct {
	ID        int64
	Timestamp time.Time
	Level     Level
	Message   string
}

// ParseLevel normalizes a level name. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Record is the JSON projection of an entry, timestamp in epoch seconds.
type Record struct {
	TS      float64 `json:"ts"`
	Level   string  `json:"level"`
	Message string  `json:"message"`
}

// ToRecord converts an entry for API output.
func (e Entry) ToRecord() Record {
	return Record{
		TS:      float64(e.Timestamp.Unix()) + float64(e.Timestamp.Nanosecond())/1e9,
		Level:   string(e.Level),
		Message: e.Message,
	}
}

// ToRecords converts entries preserving order.
func ToRecords(entries []Entry) []Record {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ToRecord())
	}
	return out
}
