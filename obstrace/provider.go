package obstrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProviderOptions configures the process-wide TracerProvider a service
// entry point installs once at startup.
type ProviderOptions struct {
	// ServiceName identifies this process in exported spans.
	ServiceName string

	// OTLPEndpoint is a collector's gRPC endpoint (e.g. "localhost:4317").
	// When empty, spans are exported to stdout instead, which is enough to
	// see tracing working locally without standing up a collector.
	OTLPEndpoint string

	// Insecure disables TLS on the gRPC connection, for local collectors.
	Insecure bool
}

// Provider owns the process-wide TracerProvider and its exporter. Call
// Shutdown during graceful shutdown to flush any spans still buffered.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider builds the span pipeline described by opts and installs it as
// OpenTelemetry's global TracerProvider, so every obstrace.Tracer created
// afterward (via New) reports through it: an OTLP/gRPC trace exporter with
// a stdout fallback for local runs with no collector configured.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	if opts.ServiceName == "" {
		return nil, fmt.Errorf("obstrace: service name is required")
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", opts.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("obstrace: building resource: %w", err)
	}

	exporter, err := buildExporter(ctx, opts)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp}, nil
}

func buildExporter(ctx context.Context, opts ProviderOptions) (sdktrace.SpanExporter, error) {
	if opts.OTLPEndpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("obstrace: building stdout exporter: %w", err)
		}
		return exporter, nil
	}

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.OTLPEndpoint)}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("obstrace: building OTLP/gRPC exporter for %s: %w", opts.OTLPEndpoint, err)
	}
	return exporter, nil
}

// Shutdown flushes any buffered spans and releases the exporter's
// connection. Safe to call even if NewProvider failed or was never called
// with a non-nil Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("obstrace: shutting down tracer provider: %w", err)
	}
	return nil
}
