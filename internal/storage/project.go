package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// CreateProject inserts a new project row, assigning timestamps.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, repo_path, github_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RepoPath, nullString(p.GitHubURL),
		formatTimeVal(p.CreatedAt), formatTimeVal(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, repo_path, github_url, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByRepoPath fetches a project by its repository root path.
func (s *Store) GetProjectByRepoPath(ctx context.Context, repoPath string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, repo_path, github_url, created_at, updated_at
		FROM projects WHERE repo_path = ?`, repoPath)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*model.Project, error) {
	var p model.Project
	var githubURL sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &githubURL, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("project", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if githubURL.Valid {
		p.GitHubURL = githubURL.String
	}
	p.CreatedAt = parseTimeVal(createdAt)
	p.UpdatedAt = parseTimeVal(updatedAt)
	return &p, nil
}

// ListProjects returns every known project, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]*model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, repo_path, github_url, created_at, updated_at
		FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*model.Project
	for rows.Next() {
		var p model.Project
		var githubURL sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoPath, &githubURL, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if githubURL.Valid {
			p.GitHubURL = githubURL.String
		}
		p.CreatedAt = parseTimeVal(createdAt)
		p.UpdatedAt = parseTimeVal(updatedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpsertProjectByRepoPath inserts a project for repoPath, or returns the
// existing one unchanged. Used by project discovery when a new repo is
// seen for the first time via the .gobby/project.json sidecar.
func (s *Store) UpsertProjectByRepoPath(ctx context.Context, p *model.Project) (*model.Project, error) {
	existing, err := s.GetProjectByRepoPath(ctx, p.RepoPath)
	if err == nil {
		return existing, nil
	}
	if !gobbyerrors.IsNotFound(err) {
		return nil, err
	}
	if err := s.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
