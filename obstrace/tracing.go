// Package obstrace wires OpenTelemetry spans around the generator client's
// HTTP calls (via NewTracedHTTPClient) and records the coordinator's
// composition metrics (via RecordMetric). It follows the
// thin-wrapper-over-otel-SDK shape used elsewhere in this module's
// dependency stack: a narrow Span interface, a no-op fallback when tracing
// isn't configured, and a traced *http.Client for outbound calls.
package obstrace

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span is the narrow interface orchestrator code uses to annotate a unit of
// work, independent of whether a real tracer is configured.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	AddEvent(name string, attrs map[string]interface{})
	RecordError(err error)
}

// Tracer starts spans for coordinator phases, instrument/section turns, and
// outbound generator calls. A zero-value Tracer is safe to use: it falls
// back to the global otel tracer on first use.
type Tracer struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// New creates a Tracer that reports spans under instrumentationName (e.g.
// "maestro-agents/orchestrator"). If the process has not configured a real
// TracerProvider, spans are recorded by OpenTelemetry's own no-op
// implementation — callers never need to branch on whether tracing is on.
// The same instrumentationName backs a metric.Meter for RecordMetric, which
// is likewise a safe no-op until a MeterProvider is configured; NewProvider
// installs only a TracerProvider, not a MeterProvider.
func New(instrumentationName string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

// RecordMetric records value under name, routing it to a counter or a
// histogram based on the name's own vocabulary: "duration"/"latency"/"time"
// go to a histogram, "count"/"total"/"errors"/"success" to a counter,
// anything else defaults to a histogram, so callers never have to pick an
// instrument type themselves.
func (t *Tracer) RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	if t == nil || t.meter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	opt := metric.WithAttributes(attrs...)

	switch {
	case containsAny(name, "duration", "latency", "time"):
		h, err := t.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		h.Record(ctx, value, opt)
	case containsAny(name, "count", "total", "errors", "success"):
		c, err := t.meter.Float64Counter(name)
		if err != nil {
			return
		}
		c.Add(ctx, value, opt)
	default:
		h, err := t.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		h.Record(ctx, value, opt)
	}
}

func containsAny(name string, substrings ...string) bool {
	for _, s := range substrings {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// StartSpan starts a span named name and returns the derived context and
// the Span handle. Callers must call span.End() (typically via defer).
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	tracer := t.tracer
	if tracer == nil {
		tracer = otel.Tracer("maestro-agents")
	}
	ctx, span := tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attributeFor(key, value))
}

func (s *otelSpan) AddEvent(name string, attrs map[string]interface{}) {
	opts := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		opts = append(opts, attributeFor(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(opts...))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func attributeFor(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// NewTracedHTTPClient returns an *http.Client whose requests carry W3C
// TraceContext headers and are recorded as child spans of whatever span is
// active on the request's context, for the generator client's outbound
// calls.
func NewTracedHTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}
