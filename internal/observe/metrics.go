// Package observe provides lingualink's observability primitives:
// OpenTelemetry metrics and tracing, context-scoped structured logging, and
// the HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// scraping by the Prometheus exporter bridge installed by [InitProvider].
// [DefaultMetrics] returns a process-wide instance; tests build their own with
// [NewMetrics] and a private [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all lingualink metrics.
const meterName = "github.com/MrWong99/lingualink"

// Metrics holds every metric instrument the service records. The OTel types
// synchronise internally, so a *Metrics may be shared freely.
type Metrics struct {
	// DecodeDuration is the latency of one decode attempt, by stage.
	DecodeDuration metric.Float64Histogram

	// DecodeOutcomes counts decode stage results. Attributes: stage, outcome.
	DecodeOutcomes metric.Int64Counter

	// TranscribeDuration is transcription latency. Attribute: status.
	TranscribeDuration metric.Float64Histogram

	// TranslateDuration is translation latency. Attributes: pair, status.
	TranslateDuration metric.Float64Histogram

	// InferenceTasks counts gateway tasks by completion status.
	InferenceTasks metric.Int64Counter

	// InferenceQueued is the number of tasks waiting for a worker.
	InferenceQueued metric.Int64UpDownCounter

	// ProviderErrors counts collaborator failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Messages counts wire messages. Attributes: endpoint, direction, type.
	Messages metric.Int64Counter

	// ActiveSessions is the number of open /ws/stream sessions.
	ActiveSessions metric.Int64UpDownCounter

	// BroadcastListeners is the number of registered broadcast users.
	BroadcastListeners metric.Int64UpDownCounter

	// BroadcastEvictions counts users removed after a failed send.
	BroadcastEvictions metric.Int64Counter

	// HTTPRequestDuration is request latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for batch
// speech inference rather than sub-frame audio work.
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.DecodeDuration, "lingualink.decode.duration", "Latency of one audio decode stage."},
		{&met.TranscribeDuration, "lingualink.transcribe.duration", "Latency of speech recognition."},
		{&met.TranslateDuration, "lingualink.translate.duration", "Latency of text translation."},
		{&met.HTTPRequestDuration, "lingualink.http.request.duration", "HTTP request latency by method and path."},
	}
	for _, h := range histograms {
		inst, err := m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.DecodeOutcomes, "lingualink.decode.outcomes", "Decode stage results by stage and outcome."},
		{&met.InferenceTasks, "lingualink.inference.tasks", "Inference gateway tasks by status."},
		{&met.ProviderErrors, "lingualink.provider.errors", "Collaborator failures by provider and kind."},
		{&met.Messages, "lingualink.messages", "Websocket messages by endpoint, direction and type."},
		{&met.BroadcastEvictions, "lingualink.broadcast.evictions", "Broadcast users evicted after a failed send."},
	}
	for _, c := range counters {
		inst, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	gauges := []struct {
		dst  *metric.Int64UpDownCounter
		name string
		desc string
	}{
		{&met.InferenceQueued, "lingualink.inference.queued", "Tasks waiting for an inference worker."},
		{&met.ActiveSessions, "lingualink.active_sessions", "Open streaming sessions."},
		{&met.BroadcastListeners, "lingualink.broadcast.listeners", "Registered broadcast users."},
	}
	for _, g := range gauges {
		inst, err := m.Int64UpDownCounter(g.name, metric.WithDescription(g.desc))
		if err != nil {
			return nil, err
		}
		*g.dst = inst
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], built on first use from
// [otel.GetMeterProvider]. Panics if instrument creation fails, which does
// not happen with a well-formed provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDecode records one decode stage attempt.
func (m *Metrics) RecordDecode(ctx context.Context, stage, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(Attr("stage", stage), Attr("outcome", outcome))
	m.DecodeOutcomes.Add(ctx, 1, attrs)
	m.DecodeDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordProviderError counts one collaborator failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)),
	)
}

// RecordMessage counts one websocket message.
func (m *Metrics) RecordMessage(ctx context.Context, endpoint, direction, msgType string) {
	m.Messages.Add(ctx, 1,
		metric.WithAttributes(
			Attr("endpoint", endpoint),
			Attr("direction", direction),
			Attr("type", msgType),
		),
	)
}
