// Package selftrace instruments ping assembly with an OpenTelemetry span
// for embedders that want to see the SDK's own activity in their trace
// pipeline. Grounded on the teacher's monitoring.OpenTelemetryTracer
// (otel.Tracer construction via a resource carrying service name, span-scoped
// attribute recording), narrowed from generic business-operation tracing to
// one operation: assembling a ping. Uploads are not traced.
package selftrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel.Tracer scoped to this SDK's own self-observability,
// distinct from any tracer provider the embedding application installs.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New builds a Tracer reporting under applicationID as the OTel service
// name, using the global tracer provider if it is already an SDK
// TracerProvider, and otherwise installing a no-exporter SDK provider as
// the global one.
func New(applicationID string) *Tracer {
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(applicationID),
			)),
		)
		otel.SetTracerProvider(tp)
	}
	return &Tracer{tracer: otel.Tracer("beacon")}
}

// StartPingAssembly starts a span covering one ping's assembly and persist.
// The caller must End the returned span once Assemble returns.
func (t *Tracer) StartPingAssembly(ctx context.Context, ping, reason string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "ping.assemble", oteltrace.WithAttributes(
		attribute.String("ping", ping),
		attribute.String("reason", reason),
	))
}

// RecordResult annotates span with the assembly's outcome.
func RecordResult(span oteltrace.Span, persisted bool, err error) {
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Bool("persisted", persisted))
	if err != nil {
		span.RecordError(err)
	}
}
