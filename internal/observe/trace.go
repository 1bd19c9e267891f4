package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/reshka"

type fieldsKey struct{}

type field struct {
	key, value string
}

// WithField returns a copy of ctx whose [Logger] and spans carry key=value.
// Sessions tag their context with the client id, transcription calls with
// the segment id. A later value for the same key replaces the earlier one.
func WithField(ctx context.Context, key, value string) context.Context {
	prev := fields(ctx)
	next := make([]field, 0, len(prev)+1)
	for _, f := range prev {
		if f.key != key {
			next = append(next, f)
		}
	}
	next = append(next, field{key: key, value: value})
	return context.WithValue(ctx, fieldsKey{}, next)
}

func fields(ctx context.Context) []field {
	fs, _ := ctx.Value(fieldsKey{}).([]field)
	return fs
}

// Tracer returns the reshka tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. Fields set with [WithField] become
// span attributes. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if fs := fields(ctx); len(fs) > 0 {
		attrs := make([]attribute.KeyValue, len(fs))
		for i, f := range fs {
			attrs[i] = attribute.String(f.key, f.value)
		}
		opts = append(opts[:len(opts):len(opts)], trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace id of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger carrying the fields of ctx, plus
// trace_id and span_id when ctx holds a span.
func Logger(ctx context.Context) *slog.Logger {
	fs := fields(ctx)
	args := make([]any, 0, len(fs)+2)
	for _, f := range fs {
		args = append(args, slog.String(f.key, f.value))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
