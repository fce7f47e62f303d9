package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the int64 sum data point whose attributes include every
// key=value in want.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, want map[string]string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, not Sum[int64]", name, met.Data)
	}
outer:
	for _, dp := range sum.DataPoints {
		for k, v := range want {
			got, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || got.AsString() != v {
				continue outer
			}
		}
		return dp.Value
	}
	return 0
}

func TestRecordDecode(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDecode(ctx, "transcode", "failed", 20*time.Millisecond)
	m.RecordDecode(ctx, "raw_pcm", "ok", time.Millisecond)
	m.RecordDecode(ctx, "raw_pcm", "ok", time.Millisecond)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "lingualink.decode.outcomes", map[string]string{"stage": "raw_pcm", "outcome": "ok"}); got != 2 {
		t.Errorf("raw_pcm ok = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "lingualink.decode.outcomes", map[string]string{"stage": "transcode"}); got != 1 {
		t.Errorf("transcode = %d, want 1", got)
	}

	hist, ok := findMetric(rm, "lingualink.decode.duration").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("decode duration is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("decode duration samples = %d, want 3", total)
	}
}

func TestRecordProviderErrorAndMessage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "whisper", "transcribe")
	m.RecordMessage(ctx, "stream", "in", "chunk")
	m.RecordMessage(ctx, "stream", "in", "chunk")
	m.RecordMessage(ctx, "stream", "out", "interim")

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "lingualink.provider.errors", map[string]string{"provider": "whisper"}); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "lingualink.messages", map[string]string{"direction": "in", "type": "chunk"}); got != 2 {
		t.Errorf("inbound chunks = %d, want 2", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 3)
	m.ActiveSessions.Add(ctx, -1)
	m.BroadcastListeners.Add(ctx, 2)
	m.InferenceQueued.Add(ctx, 1)
	m.InferenceQueued.Add(ctx, -1)

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"lingualink.active_sessions", 2},
		{"lingualink.broadcast.listeners", 2},
		{"lingualink.inference.queued", 0},
	}
	for _, tt := range tests {
		if got := sumWhere(t, rm, tt.name, nil); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
