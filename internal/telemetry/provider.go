// Package telemetry wires OpenTelemetry tracing and metrics into the
// daemon, generalizing the teacher's internal/tracing.OTelProvider (which
// bridges a sdktrace.TracerProvider and a Prometheus-backed
// sdkmetric.MeterProvider behind one type) down to the instruments
// spec.md's control plane actually needs: a handful of counters on hook
// dispatch, agent spawns, pipeline runs, and scheduled jobs, plus a
// /metrics endpoint.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/gobby-dev/gobby/internal/config"
)

// Provider owns the daemon's tracer and meter providers plus the derived
// Metrics instrument set. It is constructed once at startup and shut down
// once during daemon teardown.
type Provider struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	metrics *Metrics
}

// New builds a Provider from cfg. Spans and metrics are always recordable
// (callers never need a nil check); when cfg.Enabled is false, or no
// exporter is configured, the tracer provider samples every span out
// before it would otherwise export, and only /metrics ever reflects the
// meter provider's output.
func New(cfg config.TelemetryConfig) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		"",
		attribute.String("service.name", orDefault(cfg.ServiceName, "gobby")),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	switch {
	case !cfg.Enabled:
		traceOpts = append(traceOpts, sdktrace.WithSampler(sdktrace.NeverSample()))
	case cfg.OTLPEndpoint != "" && cfg.OTLPProtocol == "http":
		exp, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp/http exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	case cfg.OTLPEndpoint != "":
		exp, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: build otlp/grpc exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	case cfg.UseStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: build stdout exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp))
	default:
		traceOpts = append(traceOpts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExporter))
	otel.SetMeterProvider(mp)

	metrics, err := newMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metrics: %w", err)
	}

	return &Provider{tp: tp, mp: mp, metrics: metrics}, nil
}

// Tracer returns a tracer scoped to name.
func (p *Provider) Tracer(name string) trace.Tracer { return p.tp.Tracer(name) }

// Metrics returns the daemon's instrument set.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// MetricsHandler serves the Prometheus text exposition format, mounted by
// internal/httpapi at GET /metrics.
func (p *Provider) MetricsHandler() http.Handler { return promhttp.Handler() }

// Shutdown flushes and releases both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
