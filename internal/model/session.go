package model

import "time"

// SessionStatus is the lifecycle status of a Session, driven entirely by
// hook events (see internal/hook).
type SessionStatus string

const (
	SessionStatusActive       SessionStatus = "active"
	SessionStatusPaused       SessionStatus = "paused"
	SessionStatusHandoffReady SessionStatus = "handoff_ready"
	SessionStatusExpired      SessionStatus = "expired"
	SessionStatusArchived     SessionStatus = "archived"
)

// Session is one conversation between a user and an assistant CLI. It is
// uniquely identified per CLI by ExternalID and made globally unique by the
// tuple (ExternalID, MachineID, Source).
type Session struct {
	ID                string        `json:"id"`
	ExternalID        string        `json:"external_id"`
	MachineID         string        `json:"machine_id"`
	Source            string        `json:"source"`
	ProjectID         string        `json:"project_id"`
	Title             string        `json:"title,omitempty"`
	Status            SessionStatus `json:"status"`
	JSONLPath         string        `json:"jsonl_path,omitempty"`
	SummaryMarkdown   string        `json:"summary_markdown,omitempty"`
	CompactMarkdown   string        `json:"compact_markdown,omitempty"`
	GitBranch         string        `json:"git_branch,omitempty"`
	ParentSessionID   string        `json:"parent_session_id,omitempty"`
	AgentDepth        int           `json:"agent_depth"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	TranscriptProcessed bool        `json:"transcript_processed"`
}

// HandoffContext is the structured result of parsing a session's JSONL
// transcript at PRE_COMPACT time: the active task, todo state, modified
// files, git status, the initial goal, and a recent-activity digest.
// Rendered to markdown and stored on Session.CompactMarkdown.
type HandoffContext struct {
	ActiveTaskRef  string   `json:"active_task_ref,omitempty"`
	TodoState      []string `json:"todo_state,omitempty"`
	FilesModified  []string `json:"files_modified,omitempty"`
	GitStatus      string   `json:"git_status,omitempty"`
	GitCommits     []string `json:"git_commits,omitempty"`
	InitialGoal    string   `json:"initial_goal,omitempty"`
	RecentActivity string   `json:"recent_activity,omitempty"`
}
