package aiclient

import "strings"

// Event types with special meaning in the stream
const (
	EventFinal  = "final"
	EventResult = "result"
)

// Event is one NDJSON line received from the AI service. Fields holds the
// whole decoded object including "type".
type Event struct {
	Type   string
	Fields map[string]any
}

// Message returns the "message" field of the event, if any
func (e Event) Message() string {
	if s, ok := e.Fields["message"].(string); ok {
		return s
	}
	return ""
}

// IsFinal reports whether the event carries the analysis result
func (e Event) IsFinal() bool {
	t := strings.ToLower(e.Type)
	return t == EventFinal || t == EventResult
}

// Sink receives events as they arrive. Invoke never lets a panicking or
// slow sink abort the stream; panics are recovered and logged.
type Sink func(Event)
