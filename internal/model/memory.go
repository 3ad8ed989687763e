package model

import "time"

// MemoryType values group a project's memories by what kind of note they
// are; internal/memory filters on these when assembling project context.
const (
	MemoryTypeNote           = "note"
	MemoryTypeProjectContext = "project_context"
	MemoryTypeSessionSummary = "session_summary"
)

// SourceType values record how a memory entered the store.
const (
	MemorySourceManual       = "manual"
	MemorySourceSessionExtract = "session_extract"
	MemorySourceSyncImport   = "sync_import"
)

// Memory is a single durable note attached to a project. Its id is the key
// an external vector embedding would share; no vector store is wired, and
// internal/memory recalls memories by token overlap, not semantic search.
type Memory struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Content         string    `json:"content"`
	MemoryType      string    `json:"memory_type"`
	SourceType      string    `json:"source_type"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"created_at"`
}
