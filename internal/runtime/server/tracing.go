// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/tracing.go
// Summary: OpenTelemetry spans covering each reallocation from trigger to finalize.
// Notes: Uses the global tracer provider, which is a no-op until one is installed.

package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/framegrace/texelwin/internal/runtime/server"

// Tracer wraps the otel tracer used for reallocation spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer resolves a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerFrom uses an explicit provider.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

func (t *Tracer) startReallocation(trigger string, target int32) trace.Span {
	_, span := t.tracer.Start(context.Background(), "texelwin.reallocate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("texelwin.trigger", trigger),
			attribute.Int("texelwin.target", int(target)),
		),
	)
	return span
}

func (t *Tracer) endReallocation(span trace.Span, acks int, granted, exposed int64) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("texelwin.acks", acks),
		attribute.Int64("texelwin.granted_area", granted),
		attribute.Int64("texelwin.exposed_area", exposed),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}
