// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the default tracer name for the application
	TracerName = "github.com/rostilos/CodeCrow-sub008"
)

// Tracer returns the global tracer for the application
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a new span with the given name and returns the context and span.
// The caller is responsible for calling span.End() when the operation is complete.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets its status to error
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanOK sets the span status to OK
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for consistent naming
var (
	AttrProjectID   = attribute.Key("analysis.project_id")
	AttrPRNumber    = attribute.Key("analysis.pr_number")
	AttrCommit      = attribute.Key("analysis.commit")
	AttrBranch      = attribute.Key("analysis.branch")
	AttrOutcome     = attribute.Key("analysis.outcome")
	AttrState       = attribute.Key("analysis.state")
	AttrLockKey     = attribute.Key("lock.key")
	AttrProvider    = attribute.Key("vcs.provider")
	AttrIssuesCount = attribute.Key("issues.count")
	AttrAIStreamed  = attribute.Key("ai.streamed")
	AttrAIFallback  = attribute.Key("ai.fallback")
)

// WithAnalysisAttributes returns span start options describing the analysis target
func WithAnalysisAttributes(projectID uint, prNumber int, commit, branch string) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrProjectID.Int64(int64(projectID)),
		AttrPRNumber.Int(prNumber),
		AttrCommit.String(commit),
		AttrBranch.String(branch),
	)
}
