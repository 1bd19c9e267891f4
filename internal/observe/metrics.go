// Package observe provides application-wide observability primitives for
// reshka: OpenTelemetry metrics, tracing, context-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to
// Prometheus via [InitProvider] so they can be scraped from /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all reshka metrics.
const meterName = "github.com/MrWong99/reshka"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks the round trip of one speech segment
	// through the remote endpoint.
	TranscriptionDuration metric.Float64Histogram

	// AssistDuration tracks rephrase and question-generation calls. Use with
	// attribute.String("kind", ...).
	AssistDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts remote API calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts remote API failures. Use with attribute:
	//   attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// CuePlaybacks counts cues handed to an output sink. Use with attribute:
	//   attribute.String("cue", ...)
	CuePlaybacks metric.Int64Counter

	// VoiceCommands counts recognised voice commands. Use with attribute:
	//   attribute.String("command", ...)
	VoiceCommands metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of connected dictation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration is recorded by [Middleware] with method, route
	// pattern and status attributes.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// completions carrying audio, which routinely take several seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("reshka.transcription.duration",
		metric.WithDescription("Latency of speech segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AssistDuration, err = m.Float64Histogram("reshka.assist.duration",
		metric.WithDescription("Latency of rephrase and question generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("reshka.provider.requests",
		metric.WithDescription("Total remote API requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("reshka.provider.errors",
		metric.WithDescription("Total remote API errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.CuePlaybacks, err = m.Int64Counter("reshka.cue.playbacks",
		metric.WithDescription("Total audio cues played by cue name."),
	); err != nil {
		return nil, err
	}
	if met.VoiceCommands, err = m.Int64Counter("reshka.voice_commands",
		metric.WithDescription("Total recognised voice commands by command."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("reshka.active_sessions",
		metric.WithDescription("Number of connected dictation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("reshka.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// RecordProviderRequest records a remote API request with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a remote API failure.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordCuePlayback records a cue handed to an output sink.
func (m *Metrics) RecordCuePlayback(ctx context.Context, cue string) {
	m.CuePlaybacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cue", cue)),
	)
}

// RecordVoiceCommand records a recognised voice command.
func (m *Metrics) RecordVoiceCommand(ctx context.Context, command string) {
	m.VoiceCommands.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command", command)),
	)
}
