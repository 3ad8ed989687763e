package model

import "time"

// WorkflowState is one row per session per active workflow instance.
// Implementations MAY key storage by (session_id, workflow_name) to allow
// more than one workflow instance to run concurrently against a session.
type WorkflowState struct {
	SessionID        string         `json:"session_id"`
	WorkflowName     string         `json:"workflow_name"`
	Step             string         `json:"step"`
	StepEnteredAt    time.Time      `json:"step_entered_at"`
	StepActionCount  int            `json:"step_action_count"`
	TotalActionCount int            `json:"total_action_count"`
	Observations     []string       `json:"observations"`
	Variables        map[string]any `json:"variables"`
	ContextInjected  bool           `json:"context_injected"`
	ReflectionPending bool          `json:"reflection_pending"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Well-known WorkflowState.Variables keys, documented for callers that read
// or write them directly rather than through the typed helpers on
// WorkflowStateManager.
const (
	VarSpawnedAgents    = "spawned_agents"
	VarCompletedAgents  = "completed_agents"
	VarFailedAgents     = "failed_agents"
	VarReservedSlots    = "_reserved_slots"
	VarCurrentTaskID    = "current_task_id"
	VarCurrentWorkerID  = "current_worker_id"
	VarPendingPipeline  = "pending_pipeline"
	VarArtifacts        = "_artifacts"
	VarDisabled         = "_disabled"
)
