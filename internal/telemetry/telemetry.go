// Package telemetry wraps OpenTelemetry's trace and metric APIs behind
// the teacher's small Telemetry/Span contract (core/interfaces.go).
// No exporter or SDK is wired — see DESIGN.md for why — so by default
// this resolves to the otel package's global no-op tracer/meter, which
// still lets every call site use the real otel API surface (SpanKind,
// attribute.KeyValue, metric instruments) rather than a hand-rolled
// stand-in.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry starts spans and records metrics for the engine's pipeline
// stages (planner, resolver, validator, recovery, engine).
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Provider is the default Telemetry implementation, backed by an
// otel.Tracer and otel/metric.Meter obtained from the global
// providers registered via otel.SetTracerProvider /
// otel.SetMeterProvider — resolving to a no-op implementation unless
// a caller has wired a real SDK provider upstream of this package.
type Provider struct {
	tracer  trace.Tracer
	meter   metric.Meter
	counter metric.Float64Counter
}

// NewProvider builds a Provider named serviceName. Metric instrument
// creation errors are tolerated the same way the teacher's OTelProvider
// tolerates a missing exporter: metrics become no-ops rather than fatal.
func NewProvider(serviceName string) *Provider {
	tracer := otel.Tracer(serviceName)
	meter := otel.Meter(serviceName)
	counter, _ := meter.Float64Counter(
		"webagent_events_total",
		metric.WithDescription("Count of engine events by name and outcome"),
	)
	return &Provider{tracer: tracer, meter: meter, counter: counter}
}

func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	if p.counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels)+1)
	attrs = append(attrs, attribute.String("event", name))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	p.counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// NoOp is a Telemetry that discards everything, used when a caller has
// no interest in tracing (tests, and engine.New's default until
// SetTelemetry is called).
type NoOp struct{}

func (NoOp) StartSpan(ctx context.Context, _ string) (context.Context, Span) { return ctx, noOpSpan{} }
func (NoOp) RecordMetric(string, float64, map[string]string)                {}

type noOpSpan struct{}

func (noOpSpan) End()                               {}
func (noOpSpan) SetAttribute(string, interface{})   {}
func (noOpSpan) RecordError(error)                  {}
