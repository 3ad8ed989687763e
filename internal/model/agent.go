package model

import "time"

// AgentMode selects how AgentRunner executes a spawned agent.
type AgentMode string

const (
	AgentModeInProcess AgentMode = "in_process"
	AgentModeTerminal  AgentMode = "terminal"
	AgentModeEmbedded  AgentMode = "embedded"
	AgentModeHeadless  AgentMode = "headless"
)

// RunningAgent is the in-memory-only record of a live spawned agent, owned
// exclusively by RunningAgentRegistry. It is destroyed on exit or cleanup
// and never persisted.
type RunningAgent struct {
	RunID           string    `json:"run_id"`
	SessionID       string    `json:"session_id"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	Mode            AgentMode `json:"mode"`
	StartedAt       time.Time `json:"started_at"`
	PID             int       `json:"pid,omitempty"`
	MasterFD        int       `json:"master_fd,omitempty"`
	TerminalType    string    `json:"terminal_type,omitempty"`
	Provider        string    `json:"provider"`
	WorkflowName    string    `json:"workflow_name,omitempty"`
	WorktreeID      string    `json:"worktree_id,omitempty"`
	Task            string    `json:"task,omitempty"`
}

// RunSnapshot is an immutable, alias-free copy of a RunningAgent safe to
// hand to callers outside the registry's lock.
type RunSnapshot struct {
	RunID           string
	SessionID       string
	ParentSessionID string
	Mode            AgentMode
	StartedAt       time.Time
	PID             int
	TerminalType    string
	Provider        string
	WorkflowName    string
	WorktreeID      string
	Task            string
}

// Snapshot copies r into an alias-free RunSnapshot.
func (r *RunningAgent) Snapshot() RunSnapshot {
	return RunSnapshot{
		RunID:           r.RunID,
		SessionID:       r.SessionID,
		ParentSessionID: r.ParentSessionID,
		Mode:            r.Mode,
		StartedAt:       r.StartedAt,
		PID:             r.PID,
		TerminalType:    r.TerminalType,
		Provider:        r.Provider,
		WorkflowName:    r.WorkflowName,
		WorktreeID:      r.WorktreeID,
		Task:            r.Task,
	}
}
