package core

import "context"

// Span is the minimal span surface Execute needs to mark attempt
// boundaries in a trace. Mirrors the framework's own telemetry Span
// contract (End/SetAttribute/RecordError) rather than depending on a
// concrete tracing SDK type here.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Tracer starts a span for a unit of work and returns the context
// carrying it. A Manager always has one installed; NewManager defaults
// to NoOpTracer when WithTracer is not used.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// NoOpTracer discards every span. It is the zero-value-safe default so
// components never need a nil check before starting a span.
type NoOpTracer struct{}

func (NoOpTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noOpSpan{}
}

type noOpSpan struct{}

func (noOpSpan) End()                             {}
func (noOpSpan) SetAttribute(string, interface{}) {}
func (noOpSpan) RecordError(error)                {}
