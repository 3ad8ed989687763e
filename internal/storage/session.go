package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// CreateSession inserts a new session row, assigning timestamps.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, external_id, machine_id, source, project_id, title, status,
			jsonl_path, summary_markdown, compact_markdown, git_branch,
			parent_session_id, agent_depth, created_at, updated_at, transcript_processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ExternalID, sess.MachineID, sess.Source, sess.ProjectID,
		nullString(sess.Title), string(sess.Status),
		nullString(sess.JSONLPath), nullString(sess.SummaryMarkdown), nullString(sess.CompactMarkdown),
		nullString(sess.GitBranch), nullString(sess.ParentSessionID), sess.AgentDepth,
		formatTimeVal(sess.CreatedAt), formatTimeVal(sess.UpdatedAt), boolToInt(sess.TranscriptProcessed),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpsertSession registers a session on the unique (external_id, machine_id,
// source) tuple: inserts a new row, or updates an existing one in place
// preserving any already-set field the caller leaves zero-valued (via
// COALESCE(excluded.x, x)) so a later hook with partial data never wipes
// fields an earlier hook already populated. Returns the row as persisted.
func (s *Store) UpsertSession(ctx context.Context, sess *model.Session) (*model.Session, error) {
	now := time.Now()
	if sess.ID == "" {
		sess.ID = model.NewID()
	}
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, external_id, machine_id, source, project_id, title, status,
			jsonl_path, summary_markdown, compact_markdown, git_branch,
			parent_session_id, agent_depth, created_at, updated_at, transcript_processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, machine_id, source) DO UPDATE SET
			project_id = excluded.project_id,
			title = COALESCE(NULLIF(excluded.title, ''), title),
			status = excluded.status,
			jsonl_path = COALESCE(NULLIF(excluded.jsonl_path, ''), jsonl_path),
			summary_markdown = COALESCE(NULLIF(excluded.summary_markdown, ''), summary_markdown),
			compact_markdown = COALESCE(NULLIF(excluded.compact_markdown, ''), compact_markdown),
			git_branch = COALESCE(NULLIF(excluded.git_branch, ''), git_branch),
			parent_session_id = COALESCE(NULLIF(excluded.parent_session_id, ''), parent_session_id),
			agent_depth = excluded.agent_depth,
			updated_at = excluded.updated_at,
			transcript_processed = excluded.transcript_processed`,
		sess.ID, sess.ExternalID, sess.MachineID, sess.Source, sess.ProjectID,
		nullString(sess.Title), string(sess.Status),
		nullString(sess.JSONLPath), nullString(sess.SummaryMarkdown), nullString(sess.CompactMarkdown),
		nullString(sess.GitBranch), nullString(sess.ParentSessionID), sess.AgentDepth,
		formatTimeVal(sess.CreatedAt), formatTimeVal(sess.UpdatedAt), boolToInt(sess.TranscriptProcessed),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return s.GetSessionByExternalID(ctx, sess.ExternalID, sess.MachineID, sess.Source)
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, sessionSelectCols+" WHERE id = ?", id)
	return scanSession(row)
}

// GetSessionByExternalID looks a session up by its (external_id, machine_id,
// source) unique tuple — the key an adapter uses to find or create the
// session for an inbound hook event.
func (s *Store) GetSessionByExternalID(ctx context.Context, externalID, machineID, source string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		sessionSelectCols+" WHERE external_id = ? AND machine_id = ? AND source = ?",
		externalID, machineID, source)
	return scanSession(row)
}

const sessionSelectCols = `
	SELECT id, external_id, machine_id, source, project_id, title, status,
		jsonl_path, summary_markdown, compact_markdown, git_branch,
		parent_session_id, agent_depth, created_at, updated_at, transcript_processed
	FROM sessions`

func scanSession(row *sql.Row) (*model.Session, error) {
	var sess model.Session
	var title, jsonlPath, summary, compact, gitBranch, parentID sql.NullString
	var status string
	var createdAt, updatedAt string
	var transcriptProcessed int

	err := row.Scan(
		&sess.ID, &sess.ExternalID, &sess.MachineID, &sess.Source, &sess.ProjectID,
		&title, &status, &jsonlPath, &summary, &compact, &gitBranch, &parentID,
		&sess.AgentDepth, &createdAt, &updatedAt, &transcriptProcessed,
	)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("session", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = model.SessionStatus(status)
	sess.Title = title.String
	sess.JSONLPath = jsonlPath.String
	sess.SummaryMarkdown = summary.String
	sess.CompactMarkdown = compact.String
	sess.GitBranch = gitBranch.String
	sess.ParentSessionID = parentID.String
	sess.CreatedAt = parseTimeVal(createdAt)
	sess.UpdatedAt = parseTimeVal(updatedAt)
	sess.TranscriptProcessed = transcriptProcessed != 0
	return &sess, nil
}

// UpdateSession persists all mutable fields of sess and bumps UpdatedAt.
func (s *Store) UpdateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			title = ?, status = ?, jsonl_path = ?, summary_markdown = ?,
			compact_markdown = ?, git_branch = ?, parent_session_id = ?,
			agent_depth = ?, updated_at = ?, transcript_processed = ?
		WHERE id = ?`,
		nullString(sess.Title), string(sess.Status), nullString(sess.JSONLPath),
		nullString(sess.SummaryMarkdown), nullString(sess.CompactMarkdown), nullString(sess.GitBranch),
		nullString(sess.ParentSessionID), sess.AgentDepth, formatTimeVal(now),
		boolToInt(sess.TranscriptProcessed), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("session", sess.ID)
	}
	sess.UpdatedAt = now
	return nil
}

// ListSessionsByProject returns sessions for a project, most recently
// updated first.
func (s *Store) ListSessionsByProject(ctx context.Context, projectID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, machine_id, source, project_id, title, status,
			jsonl_path, summary_markdown, compact_markdown, git_branch,
			parent_session_id, agent_depth, created_at, updated_at, transcript_processed
		FROM sessions WHERE project_id = ? ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		var sess model.Session
		var title, jsonlPath, summary, compact, gitBranch, parentID sql.NullString
		var status string
		var createdAt, updatedAt string
		var transcriptProcessed int

		if err := rows.Scan(
			&sess.ID, &sess.ExternalID, &sess.MachineID, &sess.Source, &sess.ProjectID,
			&title, &status, &jsonlPath, &summary, &compact, &gitBranch, &parentID,
			&sess.AgentDepth, &createdAt, &updatedAt, &transcriptProcessed,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = model.SessionStatus(status)
		sess.Title = title.String
		sess.JSONLPath = jsonlPath.String
		sess.SummaryMarkdown = summary.String
		sess.CompactMarkdown = compact.String
		sess.GitBranch = gitBranch.String
		sess.ParentSessionID = parentID.String
		sess.CreatedAt = parseTimeVal(createdAt)
		sess.UpdatedAt = parseTimeVal(updatedAt)
		sess.TranscriptProcessed = transcriptProcessed != 0
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// FindChildSessions returns sessions whose ParentSessionID is parentID,
// used by the registry to discover in-flight spawned agents for a worker.
func (s *Store) FindChildSessions(ctx context.Context, parentID string) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, machine_id, source, project_id, title, status,
			jsonl_path, summary_markdown, compact_markdown, git_branch,
			parent_session_id, agent_depth, created_at, updated_at, transcript_processed
		FROM sessions WHERE parent_session_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("find child sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		var sess model.Session
		var title, jsonlPath, summary, compact, gitBranch, parentSessionID sql.NullString
		var status string
		var createdAt, updatedAt string
		var transcriptProcessed int

		if err := rows.Scan(
			&sess.ID, &sess.ExternalID, &sess.MachineID, &sess.Source, &sess.ProjectID,
			&title, &status, &jsonlPath, &summary, &compact, &gitBranch, &parentSessionID,
			&sess.AgentDepth, &createdAt, &updatedAt, &transcriptProcessed,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = model.SessionStatus(status)
		sess.Title = title.String
		sess.JSONLPath = jsonlPath.String
		sess.SummaryMarkdown = summary.String
		sess.CompactMarkdown = compact.String
		sess.GitBranch = gitBranch.String
		sess.ParentSessionID = parentSessionID.String
		sess.CreatedAt = parseTimeVal(createdAt)
		sess.UpdatedAt = parseTimeVal(updatedAt)
		sess.TranscriptProcessed = transcriptProcessed != 0
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
