package model

import "time"

// PromptTier selects which layer a Prompt was loaded from. Resolution order
// when names collide across tiers is Project > User > Bundled.
type PromptTier string

const (
	PromptTierBundled PromptTier = "bundled"
	PromptTierUser    PromptTier = "user"
	PromptTierProject PromptTier = "project"
)

// Prompt is a named, versioned prompt template loaded from the bundled,
// user, or project prompt directory. Unique on (Path, Tier, ProjectID) where
// a missing ProjectID coalesces to the empty string.
type Prompt struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Tier        PromptTier `json:"tier"`
	ProjectID   string     `json:"project_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	Category    string     `json:"category"`
	Content     string     `json:"content"`
	Variables   []string   `json:"variables,omitempty"`
	SourceFile  string     `json:"source_file,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
