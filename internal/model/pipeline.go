package model

import "time"

// PipelineExecutionStatus is the lifecycle status of a PipelineExecution.
type PipelineExecutionStatus string

const (
	PipelineExecutionPending          PipelineExecutionStatus = "pending"
	PipelineExecutionRunning          PipelineExecutionStatus = "running"
	PipelineExecutionWaitingApproval  PipelineExecutionStatus = "waiting_approval"
	PipelineExecutionCompleted        PipelineExecutionStatus = "completed"
	PipelineExecutionFailed           PipelineExecutionStatus = "failed"
	PipelineExecutionCancelled        PipelineExecutionStatus = "cancelled"
)

// PipelineExecution is one run of a named pipeline definition against a
// project, optionally nested under a parent execution via invoke_pipeline.
type PipelineExecution struct {
	ID                string                   `json:"id"`
	PipelineName      string                   `json:"pipeline_name"`
	ProjectID         string                   `json:"project_id"`
	Status            PipelineExecutionStatus  `json:"status"`
	InputsJSON        string                   `json:"inputs_json,omitempty"`
	OutputsJSON       string                   `json:"outputs_json,omitempty"`
	ResumeToken       string                   `json:"resume_token,omitempty"`
	SessionID         string                   `json:"session_id,omitempty"`
	ParentExecutionID string                   `json:"parent_execution_id,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
	CompletedAt       *time.Time               `json:"completed_at,omitempty"`
}

// StepExecutionStatus is the lifecycle status of a single StepExecution.
type StepExecutionStatus string

const (
	StepExecutionPending          StepExecutionStatus = "pending"
	StepExecutionRunning          StepExecutionStatus = "running"
	StepExecutionWaitingApproval  StepExecutionStatus = "waiting_approval"
	StepExecutionCompleted        StepExecutionStatus = "completed"
	StepExecutionFailed           StepExecutionStatus = "failed"
	StepExecutionSkipped          StepExecutionStatus = "skipped"
)

// StepExecution is one step's record within a PipelineExecution.
type StepExecution struct {
	ID            string               `json:"id"`
	ExecutionID   string               `json:"execution_id"`
	StepID        string               `json:"step_id"`
	Status        StepExecutionStatus  `json:"status"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	InputJSON     string               `json:"input_json,omitempty"`
	OutputJSON    string               `json:"output_json,omitempty"`
	Error         string               `json:"error,omitempty"`
	ApprovalToken string               `json:"approval_token,omitempty"`
	ApprovedBy    string               `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time           `json:"approved_at,omitempty"`
}
