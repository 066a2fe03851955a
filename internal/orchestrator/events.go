package orchestrator

import (
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/internal/aiclient"
)

// Event types produced by the orchestrator. AI stream events other than the
// terminal one are forwarded with their own types.
const (
	EventInfo    = "info"
	EventWarning = "warning"
	EventError   = "error"
	EventFinal   = aiclient.EventFinal
)

// emitter delivers events to the caller's sink; a panicking sink is logged
// and otherwise ignored
type emitter struct {
	sink  aiclient.Sink
	runID string
	log   *zap.Logger
}

func newEmitter(sink aiclient.Sink, runID string, log *zap.Logger) *emitter {
	return &emitter{sink: sink, runID: runID, log: log}
}

func (e *emitter) deliver(ev aiclient.Event) {
	if e.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Warn("Event sink panicked", zap.Any("panic", rec), zap.String("event_type", ev.Type))
		}
	}()
	e.sink(ev)
}

func (e *emitter) emit(eventType, message string, state State, extra map[string]any) {
	fields := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		fields[k] = v
	}
	fields["runId"] = e.runID
	fields["type"] = eventType
	fields["message"] = message
	fields["state"] = string(state)
	e.deliver(aiclient.Event{Type: eventType, Fields: fields})
}

// forward passes intermediate AI events through. The AI's terminal event is
// withheld; the caller gets the orchestrator's own final event instead.
func (e *emitter) forward(ev aiclient.Event) {
	if ev.IsFinal() {
		return
	}
	e.deliver(ev)
}

// final emits the terminal event describing res
func (e *emitter) final(res *Result) {
	fields := map[string]any{
		"type":    EventFinal,
		"runId":   e.runID,
		"outcome": string(res.Outcome),
	}
	if res.LockKey != "" {
		fields["lockKey"] = res.LockKey
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	if len(res.Warnings) > 0 {
		fields["warnings"] = res.Warnings
	}
	if a := res.Analysis; a != nil {
		fields["analysisId"] = a.ID
		fields["prVersion"] = a.PRVersion
		fields["comment"] = a.Comment
		fields["totalIssues"] = a.TotalIssues
		fields["highSeverityCount"] = a.HighSeverityCount
		fields["mediumSeverityCount"] = a.MediumSeverityCount
		fields["lowSeverityCount"] = a.LowSeverityCount
		fields["infoSeverityCount"] = a.InfoSeverityCount
		fields["resolvedCount"] = a.ResolvedCount
	}
	e.deliver(aiclient.Event{Type: EventFinal, Fields: fields})
}
