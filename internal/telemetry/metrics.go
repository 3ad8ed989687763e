package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the daemon's fixed instrument set, grounded on the teacher's
// MetricsCollector (internal/tracing/metrics.go) but scoped to spec.md's
// control-plane domain rather than workflow-engine internals: hook
// dispatch outcomes, agent spawns, pipeline runs, and scheduled job
// firings, instead of LLM token/cost accounting.
type Metrics struct {
	hookEventsTotal       metric.Int64Counter
	hookDispatchDuration  metric.Float64Histogram
	agentSpawnsTotal      metric.Int64Counter
	pipelineRunsTotal     metric.Int64Counter
	schedulerFiringsTotal metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("gobby")
	m := &Metrics{}
	var err error

	m.hookEventsTotal, err = meter.Int64Counter("gobby_hook_events_total",
		metric.WithDescription("Hook events processed, by decision"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}

	m.hookDispatchDuration, err = meter.Float64Histogram("gobby_hook_dispatch_duration_seconds",
		metric.WithDescription("Time spent running a hook event's action configs"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.agentSpawnsTotal, err = meter.Int64Counter("gobby_agent_spawns_total",
		metric.WithDescription("Agent runs spawned, by mode"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	m.pipelineRunsTotal, err = meter.Int64Counter("gobby_pipeline_runs_total",
		metric.WithDescription("Pipeline executions started"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	m.schedulerFiringsTotal, err = meter.Int64Counter("gobby_scheduler_firings_total",
		metric.WithDescription("Cron job firings, by status"),
		metric.WithUnit("{firing}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHookEvent records one hook dispatch's decision and duration.
func (m *Metrics) RecordHookEvent(ctx context.Context, decision string, durationSeconds float64) {
	m.hookEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	m.hookDispatchDuration.Record(ctx, durationSeconds)
}

// RecordAgentSpawn records one agent run being started.
func (m *Metrics) RecordAgentSpawn(ctx context.Context, mode string) {
	m.agentSpawnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordPipelineRun records one pipeline execution being started.
func (m *Metrics) RecordPipelineRun(ctx context.Context, name string) {
	m.pipelineRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", name)))
}

// RecordSchedulerFiring records one cron job firing outcome.
func (m *Metrics) RecordSchedulerFiring(ctx context.Context, actionType, status string) {
	m.schedulerFiringsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action_type", actionType),
		attribute.String("status", status),
	))
}
