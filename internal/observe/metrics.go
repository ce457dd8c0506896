// Package observe provides the satellite's observability primitives:
// OpenTelemetry metric instruments for pipeline runs, bridged to a
// Prometheus /metrics endpoint via [InitProvider].
package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/perchlabs/perch/internal/pipeline"
)

// meterName is the instrumentation scope name used for all perch metrics.
const meterName = "github.com/perchlabs/perch"

// Metrics holds the OpenTelemetry metric instruments. All fields are safe
// for concurrent use — the underlying OTel types handle their own
// synchronisation.
type Metrics struct {
	// PipelineDuration tracks end-to-end session latency.
	PipelineDuration metric.Float64Histogram

	// PipelineRuns counts finished sessions. Use with attributes:
	//   attribute.String("result", ...), attribute.String("source", ...)
	PipelineRuns metric.Int64Counter

	// ActiveSessions tracks sessions currently in flight. With the
	// single-flight gate this is 0 or 1; it still catches a stuck session.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-session latencies.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PipelineDuration, err = m.Float64Histogram("perch.pipeline.duration",
		metric.WithDescription("End-to-end duration of one voice session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineRuns, err = m.Int64Counter("perch.pipeline.runs",
		metric.WithDescription("Total finished sessions by result variant and source."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("perch.active_sessions",
		metric.WithDescription("Number of sessions currently in flight."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Observer adapts [Metrics] to the pipeline manager's run hooks.
type Observer struct {
	metrics *Metrics
}

var _ pipeline.RunObserver = (*Observer)(nil)

// NewObserver wraps metrics for the pipeline manager.
func NewObserver(metrics *Metrics) *Observer {
	return &Observer{metrics: metrics}
}

// PipelineStarted implements [pipeline.RunObserver].
func (o *Observer) PipelineStarted() {
	o.metrics.ActiveSessions.Add(context.Background(), 1)
}

// PipelineFinished implements [pipeline.RunObserver].
func (o *Observer) PipelineFinished(result pipeline.PipelineResult, elapsed time.Duration) {
	ctx := context.Background()
	o.metrics.ActiveSessions.Add(ctx, -1)
	o.metrics.PipelineDuration.Record(ctx, elapsed.Seconds())
	o.metrics.PipelineRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", resultName(result)),
		attribute.String("source", string(result.ResultSource())),
	))
}

// resultName flattens a result variant into a stable label value.
func resultName(result pipeline.PipelineResult) string {
	switch result.(type) {
	case pipeline.Played:
		return "played"
	case pipeline.PlayDisabled:
		return "play_disabled"
	case pipeline.NotPlayed:
		return "not_played"
	case pipeline.NotSynthesized:
		return "not_synthesized"
	case pipeline.TtsDisabled:
		return "tts_disabled"
	case pipeline.NotHandled:
		return "not_handled"
	case pipeline.HandleError:
		return "handle_error"
	case pipeline.HandleDisabled:
		return "handle_disabled"
	case pipeline.NotRecognized:
		return "not_recognized"
	case pipeline.IntentDisabled:
		return "intent_disabled"
	case pipeline.TranscriptError:
		return "transcript_error"
	case pipeline.TranscriptTimeout:
		return "transcript_timeout"
	case pipeline.TranscriptDisabled:
		return "transcript_disabled"
	case pipeline.DisabledResult:
		return "pipeline_disabled"
	default:
		return fmt.Sprintf("%T", result)
	}
}
