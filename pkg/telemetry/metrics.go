// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/rostilos/CodeCrow-sub008"
)

// Metrics holds all application metrics
type Metrics struct {
	// Analysis metrics
	AnalysesTotal    metric.Int64Counter
	AnalysisDuration metric.Float64Histogram
	ActiveAnalyses   metric.Int64UpDownCounter
	IssuesReported   metric.Int64Counter

	// Lock metrics
	LockAcquisitions metric.Int64Counter
	LockWaitDuration metric.Float64Histogram

	// AI service metrics
	AIInvocations  metric.Int64Counter
	AIDuration     metric.Float64Histogram
	AIStreamEvents metric.Int64Counter

	// VCS metrics
	PublishFailures metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

type instrument struct {
	name, desc, unit string
	buckets          []float64
}

func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	counters := []struct {
		dst *metric.Int64Counter
		instrument
	}{
		{&m.AnalysesTotal, instrument{name: "codecrow_analyses_total", desc: "Analysis runs by outcome", unit: "{analysis}"}},
		{&m.IssuesReported, instrument{name: "codecrow_issues_reported_total", desc: "Issues persisted by severity", unit: "{issue}"}},
		{&m.LockAcquisitions, instrument{name: "codecrow_lock_acquisitions_total", desc: "Lock acquisition attempts by result", unit: "{attempt}"}},
		{&m.AIInvocations, instrument{name: "codecrow_ai_invocations_total", desc: "AI service calls by transport and result", unit: "{call}"}},
		{&m.AIStreamEvents, instrument{name: "codecrow_ai_stream_events_total", desc: "NDJSON events received from the AI service", unit: "{event}"}},
		{&m.PublishFailures, instrument{name: "codecrow_vcs_publish_failures_total", desc: "Failed result publications by provider", unit: "{failure}"}},
		{&m.HTTPRequestsTotal, instrument{name: "codecrow_http_requests_total", desc: "Total number of HTTP requests", unit: "{request}"}},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	histograms := []struct {
		dst *metric.Float64Histogram
		instrument
	}{
		{&m.AnalysisDuration, instrument{"codecrow_analysis_duration_seconds", "Duration of analysis runs", "s", []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}}},
		{&m.LockWaitDuration, instrument{"codecrow_lock_wait_seconds", "Time spent waiting for an analysis lock", "s", []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300}}},
		{&m.AIDuration, instrument{"codecrow_ai_duration_seconds", "Duration of AI service calls", "s", []float64{1, 5, 10, 30, 60, 120, 300, 600}}},
		{&m.HTTPRequestDuration, instrument{"codecrow_http_request_duration_seconds", "Duration of HTTP requests", "s", []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}}},
	}
	for _, h := range histograms {
		hist, err := meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit(h.unit),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = hist
	}

	var err error
	m.ActiveAnalyses, err = meter.Int64UpDownCounter("codecrow_active_analyses",
		metric.WithDescription("Analyses currently holding a lock"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordAnalysisStarted marks an analysis as holding its lock
func (m *Metrics) RecordAnalysisStarted(ctx context.Context) {
	if m.ActiveAnalyses != nil {
		m.ActiveAnalyses.Add(ctx, 1)
	}
}

// RecordAnalysisFinished records the outcome of one orchestration run.
// held reports whether RecordAnalysisStarted was called for this run.
func (m *Metrics) RecordAnalysisFinished(ctx context.Context, outcome string, held bool, durationSeconds float64) {
	if held && m.ActiveAnalyses != nil {
		m.ActiveAnalyses.Add(ctx, -1)
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.AnalysesTotal != nil {
		m.AnalysesTotal.Add(ctx, 1, attrs)
	}
	if m.AnalysisDuration != nil {
		m.AnalysisDuration.Record(ctx, durationSeconds, attrs)
	}
}

// RecordIssues records persisted issues by severity
func (m *Metrics) RecordIssues(ctx context.Context, severity string, count int64) {
	if m.IssuesReported == nil || count == 0 {
		return
	}
	m.IssuesReported.Add(ctx, count, metric.WithAttributes(attribute.String("severity", severity)))
}

// RecordLockAcquisition records the result of acquireWithWait ("acquired" or "timeout")
func (m *Metrics) RecordLockAcquisition(ctx context.Context, lockType, result string, waitSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("lock_type", lockType),
		attribute.String("result", result),
	)
	if m.LockAcquisitions != nil {
		m.LockAcquisitions.Add(ctx, 1, attrs)
	}
	if m.LockWaitDuration != nil {
		m.LockWaitDuration.Record(ctx, waitSeconds, attrs)
	}
}

// RecordAIInvocation records one AI service call
func (m *Metrics) RecordAIInvocation(ctx context.Context, transport string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.Bool("success", success),
	)
	if m.AIInvocations != nil {
		m.AIInvocations.Add(ctx, 1, attrs)
	}
	if m.AIDuration != nil {
		m.AIDuration.Record(ctx, durationSeconds, attrs)
	}
}

// RecordAIStreamEvent counts one NDJSON event by type
func (m *Metrics) RecordAIStreamEvent(ctx context.Context, eventType string) {
	if m.AIStreamEvents != nil {
		m.AIStreamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
	}
}

// RecordPublishFailure counts a failed publication of results to a VCS
func (m *Metrics) RecordPublishFailure(ctx context.Context, provider string, cached bool) {
	if m.PublishFailures != nil {
		m.PublishFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.Bool("cache_hit", cached),
		))
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	if m.HTTPRequestsTotal != nil {
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
				attribute.Int("status_code", statusCode),
			),
		)
	}
	if m.HTTPRequestDuration != nil {
		m.HTTPRequestDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("path", path),
			),
		)
	}
}
