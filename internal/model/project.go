package model

import "time"

// Project is a single repository root tracked by Gobby, identified by a
// `.gobby/project.json` sidecar file under the repo.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RepoPath   string    `json:"repo_path"`
	GitHubURL  string    `json:"github_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProjectSidecar is the on-disk `.gobby/project.json` payload. It MAY carry
// ParentProjectPath when the directory is a git worktree of another project,
// so child workflows in the worktree can locate the parent repository.
type ProjectSidecar struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ParentProjectPath string `json:"parent_project_path,omitempty"`
}
