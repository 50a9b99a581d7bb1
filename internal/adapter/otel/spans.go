package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "deckhand"

// StartPromptSpan starts a span covering a user prompt from submission to
// backend hand-off.
func StartPromptSpan(ctx context.Context, sessionID, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "prompt",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("workspace.id", workspaceID),
		),
	)
}

// StartDialSpan starts a span for establishing a workspace event stream.
func StartDialSpan(ctx context.Context, workspaceID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stream.dial",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
		),
	)
}

// StartLaunchSpan starts a span for spawning an agent backend process.
func StartLaunchSpan(ctx context.Context, workspacePath string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "backend.launch",
		trace.WithAttributes(
			attribute.String("workspace.path", workspacePath),
		),
	)
}
