package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jacoco-filter/pkg/config"
)

// splitEndpoint strips a URL scheme from endpoint. An http:// scheme means
// the collector speaks plaintext.
func splitEndpoint(endpoint string) (hostPort string, plaintext bool) {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), false
	default:
		return endpoint, false
	}
}

func newExporter(ctx context.Context, cfg *config.TelemetryConfig) (*otlptrace.Exporter, error) {
	hostPort, plaintext := splitEndpoint(cfg.Endpoint)
	plaintext = plaintext || cfg.Insecure

	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		var opts []otlptracegrpc.Option
		if hostPort != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(hostPort))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if plaintext {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlptracehttp.Option
		if hostPort != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(hostPort))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if plaintext {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", cfg.Protocol)
	}
}
