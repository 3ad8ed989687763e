package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// UpsertPrompt inserts or replaces a prompt keyed on (path, tier, project_id),
// used by the prompt loader's directory watch to reconcile on-disk changes.
func (s *Store) UpsertPrompt(ctx context.Context, p *model.Prompt) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = model.NewID()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	varsJSON, err := json.Marshal(p.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prompts (
			id, path, tier, project_id, name, description, version, category,
			content, variables, source_file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, tier, project_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			category = excluded.category,
			content = excluded.content,
			variables = excluded.variables,
			source_file = excluded.source_file,
			updated_at = excluded.updated_at`,
		p.ID, p.Path, string(p.Tier), nullString(p.ProjectID), nullString(p.Name), p.Description,
		p.Version, p.Category, p.Content, string(varsJSON), nullString(p.SourceFile),
		formatTimeVal(p.CreatedAt), formatTimeVal(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert prompt: %w", err)
	}
	return nil
}

const promptSelectCols = `
	SELECT id, path, tier, project_id, name, description, version, category,
		content, variables, source_file, created_at, updated_at
	FROM prompts`

// ResolvePrompt looks a prompt up by path, preferring project tier, then
// user tier, then bundled tier — the resolution order documented for
// Prompt in internal/model.
func (s *Store) ResolvePrompt(ctx context.Context, path, projectID string) (*model.Prompt, error) {
	if projectID != "" {
		if p, err := s.getPromptByPathTier(ctx, path, model.PromptTierProject, projectID); err == nil {
			return p, nil
		}
	}
	if p, err := s.getPromptByPathTier(ctx, path, model.PromptTierUser, ""); err == nil {
		return p, nil
	}
	return s.getPromptByPathTier(ctx, path, model.PromptTierBundled, "")
}

func (s *Store) getPromptByPathTier(ctx context.Context, path string, tier model.PromptTier, projectID string) (*model.Prompt, error) {
	row := s.db.QueryRowContext(ctx, promptSelectCols+" WHERE path = ? AND tier = ? AND project_id IS ?",
		path, string(tier), nullString(projectID))
	return scanPrompt(row)
}

// ListPromptsByCategory returns every prompt in a category across tiers.
func (s *Store) ListPromptsByCategory(ctx context.Context, category string) ([]*model.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, promptSelectCols+" WHERE category = ? ORDER BY path ASC", category)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []*model.Prompt
	for rows.Next() {
		p, err := scanPromptRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePrompt removes a prompt, used when the loader observes a file
// removed from its source directory.
func (s *Store) DeletePrompt(ctx context.Context, path string, tier model.PromptTier, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE path = ? AND tier = ? AND project_id IS ?`,
		path, string(tier), nullString(projectID))
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	return nil
}

func scanPrompt(row *sql.Row) (*model.Prompt, error) {
	var p model.Prompt
	var projectID, name sql.NullString
	var varsJSON sql.NullString
	var sourceFile sql.NullString
	var tier string
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Path, &tier, &projectID, &name, &p.Description, &p.Version, &p.Category,
		&p.Content, &varsJSON, &sourceFile, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("prompt", p.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	return hydratePrompt(&p, tier, projectID, name, varsJSON, sourceFile, createdAt, updatedAt)
}

func scanPromptRow(rows *sql.Rows) (*model.Prompt, error) {
	var p model.Prompt
	var projectID, name sql.NullString
	var varsJSON sql.NullString
	var sourceFile sql.NullString
	var tier string
	var createdAt, updatedAt string

	err := rows.Scan(&p.ID, &p.Path, &tier, &projectID, &name, &p.Description, &p.Version, &p.Category,
		&p.Content, &varsJSON, &sourceFile, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	return hydratePrompt(&p, tier, projectID, name, varsJSON, sourceFile, createdAt, updatedAt)
}

func hydratePrompt(p *model.Prompt, tier string, projectID, name, varsJSON, sourceFile sql.NullString, createdAt, updatedAt string) (*model.Prompt, error) {
	p.Tier = model.PromptTier(tier)
	p.ProjectID = projectID.String
	p.Name = name.String
	p.SourceFile = sourceFile.String
	p.CreatedAt = parseTimeVal(createdAt)
	p.UpdatedAt = parseTimeVal(updatedAt)
	if varsJSON.Valid && varsJSON.String != "" {
		if err := json.Unmarshal([]byte(varsJSON.String), &p.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return p, nil
}
