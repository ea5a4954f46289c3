// Package otel wires server observability into OpenTelemetry: metrics and
// spans for tool invocations and session lifecycle, with optional OTLP/HTTP
// trace export.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/petal-labs/perplexity-mcp"

// ProviderConfig configures telemetry setup.
type ProviderConfig struct {
	// Endpoint is the OTLP/HTTP trace endpoint URL. Empty disables export.
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

// Telemetry holds the tracer and meter handed to observers.
type Telemetry struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	provider *sdktrace.TracerProvider
}

// Setup builds telemetry. Without an endpoint spans go to a no-op tracer.
// Metrics always use the global meter provider.
func Setup(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	t := &Telemetry{
		Meter:  gootel.GetMeterProvider().Meter(instrumentationName),
		Tracer: noop.NewTracerProvider().Tracer(instrumentationName),
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return t, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("otel: create OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "perplexity-mcp"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	t.Tracer = t.provider.Tracer(instrumentationName)
	return t, nil
}

// Shutdown flushes and stops trace export.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("otel: shutdown tracer provider: %w", err)
	}
	return nil
}
