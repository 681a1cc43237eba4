package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Fields is one structured log entry.
type Fields map[string]any

// Logger writes one JSON object per line. Every entry gets a "ts" in the
// configured location and a "level" (derived from "status" when absent).
// It is safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	enc *json.Encoder
	loc *time.Location
	now func() time.Time
}

// New returns a Logger writing to w. A nil loc means UTC.
func New(w io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{enc: json.NewEncoder(w), loc: loc, now: time.Now}
}

// Default logs to stdout in UTC.
func Default() *Logger {
	return New(os.Stdout, time.UTC)
}

// Log writes data as-is after filling in ts and level.
func (l *Logger) Log(data Fields) {
	if l == nil {
		return
	}
	data["ts"] = l.now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(data)
}

// Info logs an event for a component.
func (l *Logger) Info(component, event string, extra Fields) {
	l.Log(merge(Fields{"component": component, "event": event, "level": "info"}, extra))
}

// Warn logs a degraded but non-fatal condition.
func (l *Logger) Warn(component, event string, extra Fields) {
	l.Log(merge(Fields{"component": component, "event": event, "level": "warn"}, extra))
}

// Error logs err under error_message. The message never reaches HTTP clients.
func (l *Logger) Error(component, event string, err error, extra Fields) {
	f := Fields{"component": component, "event": event, "level": "error", "status": "error"}
	if err != nil {
		f["error_message"] = err.Error()
	}
	l.Log(merge(f, extra))
}

func merge(base, extra Fields) Fields {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
