package model

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/amp-labs/statechart/model"

// startBlockSpan creates a span covering one block.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startBlockSpan(ctx context.Context, rt Runtime, size int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "executable_content.block")
	span.SetAttributes(
		attribute.String("session_hash", SessionLabel(rt.SessionID())),
		attribute.Int("actions", size),
	)

	return ctx, span
}

// startActionSpan creates a child span for a single action.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startActionSpan(ctx context.Context, kind string, rt Runtime) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "action."+kind)
	span.SetAttributes(
		attribute.String("action", kind),
		attribute.String("session_hash", SessionLabel(rt.SessionID())),
	)

	return ctx, span
}

// endSpan records the outcome on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}

	span.End()
}
