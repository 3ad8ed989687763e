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

// CreateMemory inserts a memory note. It writes no vector embedding, and
// neither does its caller internal/memory: no vector store is wired.
func (s *Store) CreateMemory(ctx context.Context, m *model.Memory) error {
	m.CreatedAt = time.Now()
	if m.Tags == nil {
		m.Tags = []string{}
	}
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, project_id, content, memory_type, source_type, source_session_id, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Content, m.MemoryType, m.SourceType, nullString(m.SourceSessionID),
		string(tagsJSON), formatTimeVal(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// GetMemory fetches a memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, content, memory_type, source_type, source_session_id, tags, created_at
		FROM memories WHERE id = ?`, id)

	var m model.Memory
	var sourceSessionID sql.NullString
	var tagsJSON string
	var createdAt string

	err := row.Scan(&m.ID, &m.ProjectID, &m.Content, &m.MemoryType, &m.SourceType, &sourceSessionID, &tagsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.SourceSessionID = sourceSessionID.String
	m.CreatedAt = parseTimeVal(createdAt)
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &m, nil
}

// ListMemoriesByProject returns every memory for a project, newest first.
// internal/memory ranks this list by token overlap for recall; there is no
// vector-similarity recall.
func (s *Store) ListMemoriesByProject(ctx context.Context, projectID string) ([]*model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, content, memory_type, source_type, source_session_id, tags, created_at
		FROM memories WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		var m model.Memory
		var sourceSessionID sql.NullString
		var tagsJSON string
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Content, &m.MemoryType, &m.SourceType, &sourceSessionID, &tagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.SourceSessionID = sourceSessionID.String
		m.CreatedAt = parseTimeVal(createdAt)
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteMemory removes a memory row. The vector store entry must be
// deleted separately by the caller.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("memory", id)
	}
	return nil
}
