package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestCounterAccumulation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesSent.Add(ctx, 3)
	m.FramesSent.Add(ctx, 2)
	m.RecordSendError(ctx, "encode")
	m.RecordSendError(ctx, "send")
	m.RecordSendError(ctx, "send")

	rm := collect(t, reader)

	sent := findMetric(rm, "opuscast.sender.frames")
	if sent == nil {
		t.Fatal("opuscast.sender.frames not collected")
	}
	sum, ok := sent.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("frames metric type = %T, want Sum[int64]", sent.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 5 {
		t.Errorf("frames sent = %d, want 5", total)
	}

	errs := findMetric(rm, "opuscast.sender.errors")
	if errs == nil {
		t.Fatal("opuscast.sender.errors not collected")
	}
	errSum, ok := errs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("errors metric type = %T, want Sum[int64]", errs.Data)
	}
	// One data point per stage attribute.
	if len(errSum.DataPoints) != 2 {
		t.Errorf("error data points = %d, want 2 (encode, send)", len(errSum.DataPoints))
	}
}

func TestBufferGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBufferState(ctx, 7, 10, 86.5)
	m.RecordBufferState(ctx, 8, 10, 88.0)

	rm := collect(t, reader)

	occ := findMetric(rm, "opuscast.buffer.occupancy")
	if occ == nil {
		t.Fatal("opuscast.buffer.occupancy not collected")
	}
	g, ok := occ.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("occupancy metric type = %T, want Gauge[int64]", occ.Data)
	}
	if len(g.DataPoints) != 1 || g.DataPoints[0].Value != 8 {
		t.Errorf("occupancy gauge = %+v, want single point 8", g.DataPoints)
	}

	health := findMetric(rm, "opuscast.buffer.health")
	if health == nil {
		t.Fatal("opuscast.buffer.health not collected")
	}
	hg, ok := health.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("health metric type = %T, want Gauge[float64]", health.Data)
	}
	if len(hg.DataPoints) != 1 || hg.DataPoints[0].Value != 88.0 {
		t.Errorf("health gauge = %+v, want single point 88", hg.DataPoints)
	}
}

func TestLossKinds(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoss(ctx, "marker")
	m.RecordLoss(ctx, "missing")
	m.RecordLoss(ctx, "missing")

	rm := collect(t, reader)
	lost := findMetric(rm, "opuscast.receiver.frames_lost")
	if lost == nil {
		t.Fatal("opuscast.receiver.frames_lost not collected")
	}
	sum, ok := lost.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("loss metric type = %T, want Sum[int64]", lost.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("loss data points = %d, want 2 (marker, missing)", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total losses = %d, want 3", total)
	}
}
