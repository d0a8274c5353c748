// Package observe provides application-wide observability for opuscast:
// OpenTelemetry metrics with a Prometheus exporter bridge, plus the CSV
// telemetry sink the stream statistics are appended to.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all opuscast metrics.
const meterName = "github.com/stillwind/opuscast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Sender counters ---

	// FramesSent counts frames captured, encoded and handed to the transport.
	FramesSent metric.Int64Counter

	// BytesRaw counts PCM bytes entering the encoder.
	BytesRaw metric.Int64Counter

	// BytesCompressed counts encoded bytes leaving the encoder.
	BytesCompressed metric.Int64Counter

	// SendErrors counts frames dropped on transmit or encode failure. Use
	// with attribute:
	//   attribute.String("stage", "encode"|"send")
	SendErrors metric.Int64Counter

	// --- Receiver counters ---

	// PacketsReceived counts datagrams parsed off the transport.
	PacketsReceived metric.Int64Counter

	// PacketsDiscarded counts packets rejected before playback. Use with
	// attribute:
	//   attribute.String("reason", "late"|"duplicate"|"overflow"|"malformed")
	PacketsDiscarded metric.Int64Counter

	// FramesLost counts playback ticks served by concealment. Use with
	// attribute:
	//   attribute.String("kind", "marker"|"missing")
	FramesLost metric.Int64Counter

	// FramesPlayed counts frames delivered to the playback device.
	FramesPlayed metric.Int64Counter

	// --- Buffer gauges ---

	// BufferOccupancy tracks buffered playable frames.
	BufferOccupancy metric.Int64Gauge

	// BufferTarget tracks the adaptive target occupancy.
	BufferTarget metric.Int64Gauge

	// BufferHealth tracks the buffer health score in [0,100].
	BufferHealth metric.Float64Gauge

	// NetworkJitter tracks the smoothed interarrival jitter in milliseconds.
	NetworkJitter metric.Float64Gauge

	// ActiveSessions tracks the number of live stream sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// CompressionRatio tracks raw/compressed byte ratio per stats interval.
	CompressionRatio metric.Float64Histogram
}

// ratioBuckets defines histogram bucket boundaries for the compression
// ratio; low-delay voice codecs land roughly between 5x and 40x.
var ratioBuckets = []float64{
	1, 2, 5, 10, 15, 20, 30, 40, 60, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Sender counters.
	if met.FramesSent, err = m.Int64Counter("opuscast.sender.frames",
		metric.WithDescription("Total frames captured, encoded and transmitted."),
	); err != nil {
		return nil, err
	}
	if met.BytesRaw, err = m.Int64Counter("opuscast.sender.bytes_raw",
		metric.WithDescription("Total PCM bytes entering the encoder."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.BytesCompressed, err = m.Int64Counter("opuscast.sender.bytes_compressed",
		metric.WithDescription("Total encoded bytes leaving the encoder."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("opuscast.sender.errors",
		metric.WithDescription("Total frames dropped by encode or transmit failure, by stage."),
	); err != nil {
		return nil, err
	}

	// Receiver counters.
	if met.PacketsReceived, err = m.Int64Counter("opuscast.receiver.packets",
		metric.WithDescription("Total datagrams parsed off the transport."),
	); err != nil {
		return nil, err
	}
	if met.PacketsDiscarded, err = m.Int64Counter("opuscast.receiver.discarded",
		metric.WithDescription("Total packets rejected before playback, by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesLost, err = m.Int64Counter("opuscast.receiver.frames_lost",
		metric.WithDescription("Total playback ticks served by concealment, by kind."),
	); err != nil {
		return nil, err
	}
	if met.FramesPlayed, err = m.Int64Counter("opuscast.receiver.frames_played",
		metric.WithDescription("Total frames delivered to the playback device."),
	); err != nil {
		return nil, err
	}

	// Buffer gauges.
	if met.BufferOccupancy, err = m.Int64Gauge("opuscast.buffer.occupancy",
		metric.WithDescription("Buffered playable frames."),
	); err != nil {
		return nil, err
	}
	if met.BufferTarget, err = m.Int64Gauge("opuscast.buffer.target",
		metric.WithDescription("Adaptive target occupancy in frames."),
	); err != nil {
		return nil, err
	}
	if met.BufferHealth, err = m.Float64Gauge("opuscast.buffer.health",
		metric.WithDescription("Buffer health score in [0,100]."),
	); err != nil {
		return nil, err
	}
	if met.NetworkJitter, err = m.Float64Gauge("opuscast.network.jitter",
		metric.WithDescription("Smoothed interarrival jitter."),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("opuscast.active_sessions",
		metric.WithDescription("Number of live stream sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.CompressionRatio, err = m.Float64Histogram("opuscast.sender.compression_ratio",
		metric.WithDescription("Raw-to-compressed byte ratio per stats interval."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordSendError records one dropped frame for the given pipeline stage.
func (m *Metrics) RecordSendError(ctx context.Context, stage string) {
	m.SendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordDiscard records one packet rejected before playback.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	m.PacketsDiscarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordLoss records one concealed playback tick. kind is "marker" for an
// explicit loss marker and "missing" for a frame that never arrived.
func (m *Metrics) RecordLoss(ctx context.Context, kind string) {
	m.FramesLost.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordBufferState records the gauges from one buffer snapshot.
func (m *Metrics) RecordBufferState(ctx context.Context, occupancy, target int, health float64) {
	m.BufferOccupancy.Record(ctx, int64(occupancy))
	m.BufferTarget.Record(ctx, int64(target))
	m.BufferHealth.Record(ctx, health)
}
