package model

import "time"

// ScheduleType selects which of CronExpr, IntervalSeconds, or RunAt governs
// a CronJob's next-run computation.
type ScheduleType string

const (
	ScheduleTypeCron     ScheduleType = "cron"
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeOnce     ScheduleType = "once"
)

// CronJob is a scheduled action: a shell command, agent spawn, or pipeline
// run, fired on a cron expression, fixed interval, or one-shot timestamp.
//
// Invariant: exactly one of CronExpr, IntervalSeconds, RunAt is set,
// matching ScheduleType.
type CronJob struct {
	ID                  string       `json:"id"`
	ProjectID           string       `json:"project_id"`
	Name                string       `json:"name"`
	ScheduleType        ScheduleType `json:"schedule_type"`
	CronExpr            string       `json:"cron_expr,omitempty"`
	IntervalSeconds     int          `json:"interval_seconds,omitempty"`
	RunAt               *time.Time   `json:"run_at,omitempty"`
	Timezone            string       `json:"timezone"`
	ActionType          string       `json:"action_type"`
	ActionConfig        string       `json:"action_config"`
	Enabled             bool         `json:"enabled"`
	NextRunAt           *time.Time   `json:"next_run_at,omitempty"`
	LastRunAt           *time.Time   `json:"last_run_at,omitempty"`
	LastStatus          string       `json:"last_status,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Description         string       `json:"description,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// CronJob.ActionType values.
const (
	CronActionShell       = "shell"
	CronActionAgentSpawn  = "agent_spawn"
	CronActionPipelineRun = "pipeline_run"
)

// CronRun is a single firing of a CronJob.
type CronRun struct {
	ID                  string     `json:"id"`
	CronJobID           string     `json:"cron_job_id"`
	TriggeredAt         time.Time  `json:"triggered_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	Status              string     `json:"status"`
	Output              string     `json:"output,omitempty"`
	Error               string     `json:"error,omitempty"`
	AgentRunID          string     `json:"agent_run_id,omitempty"`
	PipelineExecutionID string     `json:"pipeline_execution_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
