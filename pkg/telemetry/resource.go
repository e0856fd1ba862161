package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ServiceName names this tool in exported spans.
const ServiceName = "jacoco-filter"

func newResource(_ context.Context, version string, attrs ...attribute.KeyValue) (*resource.Resource, error) {
	if version == "" {
		version = "unknown"
	}
	kvs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		kvs = append(kvs, semconv.HostName(host))
	}
	kvs = append(kvs, attrs...)

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, kvs...),
	)
}
