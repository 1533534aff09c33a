// Package observe provides application-wide observability primitives for
// Clario: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Clario metrics.
const meterName = "github.com/clariohq/clario"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChunkDuration tracks per-chunk preprocessing latency. This must stay
	// well below the real-time duration of the audio each chunk carries.
	ChunkDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts audio chunks run through the pipeline. Use with
	// attribute:
	//   attribute.String("result", "output"|"buffering")
	ChunksProcessed metric.Int64Counter

	// FramesDenoised counts frames processed by the denoiser.
	FramesDenoised metric.Int64Counter

	// SilenceResets counts automatic silence-timeout state resets.
	SilenceResets metric.Int64Counter

	// BytesIn and BytesOut count raw audio throughput at the stream ingress
	// and egress.
	BytesIn  metric.Int64Counter
	BytesOut metric.Int64Counter

	// --- Error counters ---

	// DenoiseFailures counts per-frame denoise failures that fell open to
	// pass-through.
	DenoiseFailures metric.Int64Counter

	// StreamErrors counts stream transport errors. Use with attribute:
	//   attribute.String("kind", ...)
	StreamErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live audio sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// chunkLatencyBuckets defines histogram bucket boundaries (in seconds)
// optimised for per-chunk processing, which sits far below typical request
// latencies.
var chunkLatencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("clario.chunk.duration",
		metric.WithDescription("Latency of preprocessing one audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("clario.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksProcessed, err = m.Int64Counter("clario.chunks.processed",
		metric.WithDescription("Total audio chunks run through the pipeline by result."),
	); err != nil {
		return nil, err
	}
	if met.FramesDenoised, err = m.Int64Counter("clario.frames.denoised",
		metric.WithDescription("Total frames processed by the denoiser."),
	); err != nil {
		return nil, err
	}
	if met.SilenceResets, err = m.Int64Counter("clario.silence.resets",
		metric.WithDescription("Total automatic silence-timeout state resets."),
	); err != nil {
		return nil, err
	}
	if met.BytesIn, err = m.Int64Counter("clario.stream.bytes_in",
		metric.WithDescription("Raw audio bytes received at the stream ingress."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.BytesOut, err = m.Int64Counter("clario.stream.bytes_out",
		metric.WithDescription("Processed audio bytes sent to stream clients."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.DenoiseFailures, err = m.Int64Counter("clario.denoise.failures",
		metric.WithDescription("Per-frame denoise failures that fell open to pass-through."),
	); err != nil {
		return nil, err
	}
	if met.StreamErrors, err = m.Int64Counter("clario.stream.errors",
		metric.WithDescription("Stream transport errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("clario.active_sessions",
		metric.WithDescription("Number of live audio sessions."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChunk is a convenience method that records one processed chunk with
// its latency and result attribute.
func (m *Metrics) RecordChunk(ctx context.Context, seconds float64, buffering bool) {
	result := "output"
	if buffering {
		result = "buffering"
	}
	m.ChunksProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
	m.ChunkDuration.Record(ctx, seconds)
}

// RecordStreamError is a convenience method that records a stream transport
// error counter increment.
func (m *Metrics) RecordStreamError(ctx context.Context, kind string) {
	m.StreamErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
