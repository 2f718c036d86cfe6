// Package observe provides application-wide observability primitives for
// VoxBridge: OpenTelemetry metrics and the SDK provider setup that bridges
// them to a Prometheus /metrics endpoint.
//
// The audio path is counter-heavy: every lossy decision (buffer overflow,
// dispatch overrun, discarded synthesis) is counted, never silent. All of
// those counters live here. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxBridge metrics.
const meterName = "github.com/voxbridge/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// InferenceDuration tracks the wall-clock latency of one Translate call
	// (the whole ASR→MT→TTS chain). Use with attribute
	// attribute.String("channel", ...).
	InferenceDuration metric.Float64Histogram

	// UtteranceDuration tracks the audio length of dispatched utterances in
	// seconds. Use with attribute attribute.String("channel", ...).
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// FrameDrops counts frames lost to buffer overflow. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("policy", ...)
	FrameDrops metric.Int64Counter

	// Utterances counts dispatched utterances by outcome. Use with attributes:
	//   attribute.String("channel", ...), attribute.String("status", ...)
	// where status is one of "ok", "empty", "inference_error", "timeout",
	// "overrun", "discarded".
	Utterances metric.Int64Counter

	// DispatchOverruns counts utterances evicted from a full pending-dispatch
	// queue. Use with attribute attribute.String("channel", ...).
	DispatchOverruns metric.Int64Counter

	// DeviceDisconnects counts endpoint transitions into the Disconnected
	// state. Use with attribute attribute.String("endpoint", ...).
	DeviceDisconnects metric.Int64Counter

	// --- Gauges ---

	// DegradedChannels tracks how many channels are currently degraded.
	DegradedChannels metric.Int64UpDownCounter

	// ActiveEndpoints tracks running endpoints. Use with attributes:
	//   attribute.String("direction", ...), attribute.String("kind", ...)
	ActiveEndpoints metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the admin
	// server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a sub-second end-to-end budget.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.5, 3, 6,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("voxbridge.inference.duration",
		metric.WithDescription("Latency of one full translate (ASR→MT→TTS) call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("voxbridge.utterance.duration",
		metric.WithDescription("Audio length of dispatched utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FrameDrops, err = m.Int64Counter("voxbridge.frames.dropped",
		metric.WithDescription("Frames lost to buffer overflow by endpoint and policy."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voxbridge.utterances",
		metric.WithDescription("Dispatched utterances by channel and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DispatchOverruns, err = m.Int64Counter("voxbridge.dispatch.overruns",
		metric.WithDescription("Utterances evicted from a full pending-dispatch queue."),
	); err != nil {
		return nil, err
	}
	if met.DeviceDisconnects, err = m.Int64Counter("voxbridge.device.disconnects",
		metric.WithDescription("Endpoint transitions into the Disconnected state."),
	); err != nil {
		return nil, err
	}

	if met.DegradedChannels, err = m.Int64UpDownCounter("voxbridge.channels.degraded",
		metric.WithDescription("Channels currently in the Degraded state."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEndpoints, err = m.Int64UpDownCounter("voxbridge.endpoints.active",
		metric.WithDescription("Endpoints currently running, by direction and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordFrameDrops adds n to the frame-drop counter for one endpoint.
func (m *Metrics) RecordFrameDrops(ctx context.Context, endpoint, policy string, n int64) {
	if n <= 0 {
		return
	}
	m.FrameDrops.Add(ctx, n,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("policy", policy),
		))
}

// RecordUtterance counts one utterance outcome on a channel.
func (m *Metrics) RecordUtterance(ctx context.Context, channel, status string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		))
}
