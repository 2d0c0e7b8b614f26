// Package trace wires a minimal OpenTelemetry tracer for the iteration
// phases (init/choose/dispatch/wait/report), so an operator debugging a
// stalled iteration can see where it is stuck. No exporter is
// configured by default — until NewProvider installs a provider with
// one, spans go to the global OpenTelemetry provider and are not
// recorded anywhere.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/NVIDIA/balancer"

// NewProvider returns an SDK tracer provider with no exporter attached
// by default; callers that want spans shipped somewhere register one
// themselves via sdktrace.WithBatcher before calling NewProvider.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer is the balancer's named tracer.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// Phase starts a span for one IterationDriver phase and returns the
// span's context plus the func that ends it:
// `ctx, end := trace.Phase(ctx, "dispatch"); defer end()`.
func Phase(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := Tracer().Start(ctx, name)
	return ctx, func() { span.End() }
}
