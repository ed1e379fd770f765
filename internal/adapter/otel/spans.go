package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "brainstem"

// StartToolCallSpan starts a span for a tool invocation.
func StartToolCallSpan(ctx context.Context, tool, caller string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.tool", tool),
			attribute.String("toolcall.caller", caller),
		),
	)
}

// StartGuardSpan starts a span for a guard evaluation.
func StartGuardSpan(ctx context.Context, tool, profile string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "guard",
		trace.WithAttributes(
			attribute.String("guard.tool", tool),
			attribute.String("guard.profile", profile),
		),
	)
}

// StartExecSpan starts a span for a sandboxed subprocess execution.
func StartExecSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "exec",
		trace.WithAttributes(
			attribute.String("exec.command", command),
		),
	)
}
