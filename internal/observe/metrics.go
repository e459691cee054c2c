// Package observe provides application-wide observability primitives: an
// OpenTelemetry meter bridged to a Prometheus exporter. It contains no
// logging code.
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

// meterName is the instrumentation scope name used for all pulseclient
// metrics.
const meterName = "github.com/brindlecove/pulseclient"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// HandshakeDuration tracks the time from Connect to Ready (or Failed).
	HandshakeDuration metric.Float64Histogram

	// DrainLatency tracks the time between a Drain request and its callback
	// firing.
	DrainLatency metric.Float64Histogram

	// --- Counters ---

	// StateTransitions counts lifecycle transitions. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// ProtocolErrors counts terminal failures by error code. Use with
	// attribute: attribute.String("code", ...)
	ProtocolErrors metric.Int64Counter

	// ReconnectAttempts counts reconnection attempts. Use with attribute:
	//   attribute.String("outcome", ...)
	ReconnectAttempts metric.Int64Counter

	// --- Gauges ---

	// PendingOperations tracks outstanding tagged requests across all
	// sessions (the dispatcher's pending-entry count).
	PendingOperations metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live sessions in state Ready.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of attached playback/record streams.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// handshake and drain latency, which are expected to be sub-second under
// normal operation but may occasionally stretch into the default timeout
// range.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HandshakeDuration, err = m.Float64Histogram("pulseclient.handshake.duration",
		metric.WithDescription("Time from Connect to Ready or Failed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DrainLatency, err = m.Float64Histogram("pulseclient.drain.latency",
		metric.WithDescription("Time between a Drain request and its callback firing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.StateTransitions, err = m.Int64Counter("pulseclient.state.transitions",
		metric.WithDescription("Total lifecycle transitions by from/to state."),
	); err != nil {
		return nil, err
	}
	if met.ProtocolErrors, err = m.Int64Counter("pulseclient.protocol.errors",
		metric.WithDescription("Total terminal failures by error code."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("pulseclient.reconnect.attempts",
		metric.WithDescription("Total reconnection attempts by outcome."),
	); err != nil {
		return nil, err
	}

	if met.PendingOperations, err = m.Int64UpDownCounter("pulseclient.operations.pending",
		metric.WithDescription("Outstanding tagged requests awaiting a reply."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("pulseclient.sessions.active",
		metric.WithDescription("Number of sessions currently in state Ready."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("pulseclient.streams.active",
		metric.WithDescription("Number of attached playback/record streams."),
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

// RecordTransition records a lifecycle transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordProtocolError records a terminal failure by error code.
func (m *Metrics) RecordProtocolError(ctx context.Context, code string) {
	m.ProtocolErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}

// RecordReconnectAttempt records a reconnection attempt outcome.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, outcome string) {
	m.ReconnectAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
