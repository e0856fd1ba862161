package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/jacoco-filter/pkg/config"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []*config.TelemetryConfig{nil, {Enabled: false, Protocol: "grpc"}} {
		shutdown, err := Init(ctx, cfg, "1.0.0")
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if shutdown == nil {
			t.Fatal("Expected shutdown function to be non-nil")
		}
		if err := shutdown(ctx); err != nil {
			t.Errorf("Expected no error on shutdown, got %v", err)
		}
		if Enabled() {
			t.Error("Expected Enabled() to return false")
		}
	}
}

func TestInit_UnsupportedProtocol(t *testing.T) {
	cfg := &config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}
	shutdown, err := Init(context.Background(), cfg, "")
	if err == nil {
		t.Fatal("Expected an error for an unknown protocol")
	}
	if shutdown == nil || Enabled() {
		t.Error("Expected a no-op shutdown and tracing to stay off")
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		in        string
		hostPort  string
		plaintext bool
	}{
		{"http://collector:4317", "collector:4317", true},
		{"https://collector:4317", "collector:4317", false},
		{"collector:4317", "collector:4317", false},
		{"", "", false},
	}
	for _, tt := range tests {
		hostPort, plaintext := splitEndpoint(tt.in)
		if hostPort != tt.hostPort || plaintext != tt.plaintext {
			t.Errorf("splitEndpoint(%q) = %q, %v; want %q, %v", tt.in, hostPort, plaintext, tt.hostPort, tt.plaintext)
		}
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{1, "ParentBased{root:AlwaysOnSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := newSampler(tt.ratio).Description()
		if len(got) < len(tt.want) || got[:len(tt.want)] != tt.want {
			t.Errorf("newSampler(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), "", attribute.String("jacoco.exec.format", "0x1007"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	values := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		values[kv.Key] = kv.Value.Emit()
	}
	if values[semconv.ServiceNameKey] != ServiceName {
		t.Errorf("Expected service name %q, got %q", ServiceName, values[semconv.ServiceNameKey])
	}
	if values[semconv.ServiceVersionKey] != "unknown" {
		t.Errorf("Expected version 'unknown', got %q", values[semconv.ServiceVersionKey])
	}
	if values["jacoco.exec.format"] != "0x1007" {
		t.Errorf("Expected exec format attribute, got %q", values["jacoco.exec.format"])
	}
}

func TestEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	EndSpan(failed, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Unset {
		t.Errorf("Expected unset status, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("Expected error status, got %+v", spans[1].Status())
	}
	if len(spans[1].Events()) != 1 {
		t.Errorf("Expected the error to be recorded as an event")
	}
}

func TestTracer_NoopWhenDisabled(t *testing.T) {
	_, span := Tracer("engine").Start(context.Background(), "noop")
	defer span.End()
	if span.IsRecording() {
		t.Error("Expected a non-recording span from the default provider")
	}
}
