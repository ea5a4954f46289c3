package otel_test

import (
	"context"
	"testing"

	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	mcpotel "github.com/petal-labs/perplexity-mcp/otel"
	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/tool"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestObserverRecordsInvocationMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := mcpotel.NewObserver(mp.Meter("test-observer"), noop.NewTracerProvider().Tracer("test-observer"))
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:   tool.ChatToolName,
		SessionID:  "s1",
		Model:      "sonar",
		Format:     "markdown",
		DurationMS: 120,
		Success:    true,
	})
	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:   tool.ChatToolName,
		SessionID:  "s1",
		DurationMS: 3,
		ErrorCode:  tool.ToolErrorCodeInvalidArguments,
	})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, "perplexity_mcp.tool.invocations")
	if invocations == nil {
		t.Fatal("perplexity_mcp.tool.invocations metric not found")
	}
	if got := sumValue(t, invocations); got != 2 {
		t.Fatalf("invocations = %d, want 2", got)
	}

	latency := findMetric(rm, "perplexity_mcp.tool.latency")
	if latency == nil {
		t.Fatal("perplexity_mcp.tool.latency metric not found")
	}
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("perplexity_mcp.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Fatalf("latency samples = %d, want 2", count)
	}
}

func TestObserverTracksActiveSessions(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := mcpotel.NewObserver(mp.Meter("test-observer"), nil)
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	observer.ObserveSession(session.Observation{Event: session.EventOpened, SessionID: "a", Transport: "sse"})
	observer.ObserveSession(session.Observation{Event: session.EventOpened, SessionID: "b", Transport: "sse"})
	observer.ObserveSession(session.Observation{Event: session.EventClosed, SessionID: "a", Transport: "sse"})

	rm := collectMetrics(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"perplexity_mcp.sessions.opened", 2},
		{"perplexity_mcp.sessions.closed", 1},
		{"perplexity_mcp.sessions.active", 1},
	}
	for _, tt := range tests {
		m := findMetric(rm, tt.name)
		if m == nil {
			t.Fatalf("%s metric not found", tt.name)
		}
		if got := sumValue(t, m); got != tt.want {
			t.Fatalf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestObserverEmitsInvokeSpans(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()
	observer, err := mcpotel.NewObserver(mp.Meter("test-observer"), tp.Tracer("test-observer"))
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{ToolName: tool.ChatToolName, SessionID: "s1", Success: true})
	observer.ObserveInvoke(tool.InvokeObservation{ToolName: tool.ChatToolName, SessionID: "s1", ErrorCode: tool.ToolErrorCodeUpstreamFailure})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for _, span := range spans {
		if span.Name != "tool.invoke" {
			t.Fatalf("span name = %q, want tool.invoke", span.Name)
		}
	}
	if spans[0].Status.Code != otelcodes.Ok {
		t.Errorf("spans[0] status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != otelcodes.Error || spans[1].Status.Description != tool.ToolErrorCodeUpstreamFailure {
		t.Errorf("spans[1] status = %+v, want Error %s", spans[1].Status, tool.ToolErrorCodeUpstreamFailure)
	}
}

func TestNilObserverIsSafe(t *testing.T) {
	var observer *mcpotel.Observer
	observer.ObserveInvoke(tool.InvokeObservation{ToolName: tool.ChatToolName})
	observer.ObserveSession(session.Observation{Event: session.EventOpened})
}

func TestSetupWithoutEndpoint(t *testing.T) {
	telemetry, err := mcpotel.Setup(context.Background(), mcpotel.ProviderConfig{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if telemetry.Tracer == nil || telemetry.Meter == nil {
		t.Fatal("Setup() returned nil tracer or meter")
	}
	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	telemetry, err := mcpotel.Setup(context.Background(), mcpotel.ProviderConfig{
		Endpoint:       "http://127.0.0.1:4318/v1/traces",
		ServiceVersion: "test",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if telemetry.Tracer == nil {
		t.Fatal("Setup() returned nil tracer")
	}
	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
