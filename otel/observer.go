package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/tool"
)

// Observer records tool invocations and session lifecycle into
// OpenTelemetry.
type Observer struct {
	tracer trace.Tracer

	invocations    metric.Int64Counter
	latency        metric.Float64Histogram
	sessionsOpened metric.Int64Counter
	sessionsClosed metric.Int64Counter
	sessionsActive metric.Int64UpDownCounter
}

// NewObserver creates an observer bound to the provided meter/tracer. A nil
// tracer disables spans.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	invocations, err := meter.Int64Counter(
		"perplexity_mcp.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"perplexity_mcp.tool.latency",
		metric.WithDescription("Tool latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	opened, err := meter.Int64Counter(
		"perplexity_mcp.sessions.opened",
		metric.WithDescription("Number of sessions opened"),
	)
	if err != nil {
		return nil, err
	}
	closed, err := meter.Int64Counter(
		"perplexity_mcp.sessions.closed",
		metric.WithDescription("Number of sessions closed"),
	)
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter(
		"perplexity_mcp.sessions.active",
		metric.WithDescription("Number of open sessions"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:         tracer,
		invocations:    invocations,
		latency:        latency,
		sessionsOpened: opened,
		sessionsClosed: closed,
		sessionsActive: active,
	}, nil
}

// ObserveInvoke records one invocation result.
func (o *Observer) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
	}
	if observation.Model != "" {
		attrs = append(attrs, attribute.String("model", observation.Model))
	}
	if observation.Format != "" {
		attrs = append(attrs, attribute.String("output_format", observation.Format))
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)

	if o.tracer == nil {
		return
	}
	// Session ids are unbounded, so they go on the span and not the metrics.
	spanAttrs := append(attrs, attribute.String("session_id", observation.SessionID))
	_, span := o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(spanAttrs...))
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveSession records a session lifecycle transition.
func (o *Observer) ObserveSession(observation session.Observation) {
	if o == nil {
		return
	}

	ctx := context.Background()
	options := metric.WithAttributes(attribute.String("transport", observation.Transport))
	switch observation.Event {
	case session.EventOpened:
		o.sessionsOpened.Add(ctx, 1, options)
		o.sessionsActive.Add(ctx, 1, options)
	case session.EventClosed:
		o.sessionsClosed.Add(ctx, 1, options)
		o.sessionsActive.Add(ctx, -1, options)
	}
}

var (
	_ tool.Observer    = (*Observer)(nil)
	_ session.Observer = (*Observer)(nil)
)
