package telemetry_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/config"
	"github.com/gobby-dev/gobby/internal/telemetry"
)

func TestNewBuildsUsableProvider(t *testing.T) {
	p, err := telemetry.New(config.TelemetryConfig{ServiceName: "gobby-test", Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Metrics())

	tracer := p.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewWithStdoutExporterDoesNotError(t *testing.T) {
	p, err := telemetry.New(config.TelemetryConfig{ServiceName: "gobby-test", Enabled: true, UseStdout: true})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewSelectsOTLPTransportByProtocol(t *testing.T) {
	// otlptracegrpc/otlptracehttp.New only dial lazily on first export, so
	// building against an unreachable endpoint still succeeds here.
	grpcProvider, err := telemetry.New(config.TelemetryConfig{
		ServiceName: "gobby-test", Enabled: true, OTLPEndpoint: "localhost:4317",
	})
	require.NoError(t, err)
	require.NoError(t, grpcProvider.Shutdown(context.Background()))

	httpProvider, err := telemetry.New(config.TelemetryConfig{
		ServiceName: "gobby-test", Enabled: true, OTLPEndpoint: "localhost:4318", OTLPProtocol: "http",
	})
	require.NoError(t, err)
	require.NoError(t, httpProvider.Shutdown(context.Background()))
}

func TestMetricsHandlerServesPrometheusFormat(t *testing.T) {
	p, err := telemetry.New(config.TelemetryConfig{ServiceName: "gobby-test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.Metrics().RecordHookEvent(context.Background(), "allow", 0.01)
	p.Metrics().RecordAgentSpawn(context.Background(), "headless")
	p.Metrics().RecordPipelineRun(context.Background(), "deploy")
	p.Metrics().RecordSchedulerFiring(context.Background(), "shell", "success")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "gobby_hook_events_total")
	require.Contains(t, body, "gobby_agent_spawns_total")
	require.Contains(t, body, "gobby_pipeline_runs_total")
	require.Contains(t, body, "gobby_scheduler_firings_total")
}
