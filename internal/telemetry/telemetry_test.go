package telemetry

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw-sched/internal/config"
)

func TestStartSpan_ReturnsAValidSpan(t *testing.T) {
	_, span := StartSpan(context.Background(), "fire.routine")
	if span == nil {
		t.Fatalf("expected a non-nil span")
	}
	span.End()
}

func TestNewExporter_SelectsGRPCByDefault(t *testing.T) {
	// otlptracegrpc.New dials lazily, so constructing the exporter against an
	// endpoint that is never actually contacted in this test is safe.
	exp, err := newExporter(context.Background(), config.TelemetryConfig{Endpoint: "127.0.0.1:4317", Insecure: true})
	if err != nil {
		t.Fatalf("newExporter(grpc): %v", err)
	}
	_ = exp.Shutdown(context.Background())
}

func TestNewExporter_SelectsHTTPWhenConfigured(t *testing.T) {
	exp, err := newExporter(context.Background(), config.TelemetryConfig{Protocol: "http", Endpoint: "127.0.0.1:4318", Insecure: true})
	if err != nil {
		t.Fatalf("newExporter(http): %v", err)
	}
	_ = exp.Shutdown(context.Background())
}
