package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "skirmish/server"

// Tracer returns the process tracer. Without a configured provider otel
// hands back a no-op implementation.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartTick opens the span that wraps one simulation step.
func StartTick(ctx context.Context, sessionID string, tick uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.tick",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("session.tick", int64(tick)),
		),
	)
}

// StartFrame opens a span around decoding and forwarding one network frame.
func StartFrame(ctx context.Context, peerID string, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "net.frame",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("peer.id", peerID),
			attribute.String("action.kind", kind),
		),
	)
}
