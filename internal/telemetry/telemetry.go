// Package telemetry wires OpenTelemetry tracing for the scheduling core
// (SPEC_FULL §2, component O): one span per scheduler fire
// (routine/reminder/interactive-fork watchdog) and one span per webhook
// request, exported via OTLP. The teacher's go.mod already
// carried the full otel/sdk + otlptrace stack without exercising it; this
// package is where this module actually puts it to work.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw-sched/internal/config"
)

// Tracer is the shared tracer every instrumented package pulls spans from.
var Tracer = otel.Tracer("goclaw-sched")

// Init configures the global TracerProvider from cfg and returns a shutdown
// func that must be called (with a fresh, short-lived context) before the
// process exits so buffered spans flush.
func Init(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("goclaw-sched")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

// StartSpan is a thin convenience wrapper so call sites don't each import
// both otel and otel/trace just to start one span.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name)
}
