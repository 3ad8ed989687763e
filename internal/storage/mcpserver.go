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

// CreateMCPServer inserts a new configured MCP server.
func (s *Store) CreateMCPServer(ctx context.Context, srv *model.MCPServer) error {
	now := time.Now()
	if srv.ID == "" {
		srv.ID = model.NewID()
	}
	srv.CreatedAt = now
	srv.UpdatedAt = now

	argsJSON, err := json.Marshal(srv.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(srv.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (
			id, project_id, name, transport, command, args, url, env, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		srv.ID, nullString(srv.ProjectID), srv.Name, string(srv.Transport), nullString(srv.Command),
		string(argsJSON), nullString(srv.URL), string(envJSON), boolToInt(srv.Enabled),
		formatTimeVal(srv.CreatedAt), formatTimeVal(srv.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}
	return nil
}

const mcpServerSelectCols = `
	SELECT id, project_id, name, transport, command, args, url, env, enabled,
		created_at, updated_at
	FROM mcp_servers`

// GetMCPServer fetches a server by id.
func (s *Store) GetMCPServer(ctx context.Context, id string) (*model.MCPServer, error) {
	row := s.db.QueryRowContext(ctx, mcpServerSelectCols+" WHERE id = ?", id)
	return scanMCPServer(row)
}

// GetMCPServerByName resolves a server by its project-scoped name, falling
// back to a globally-shared server (project_id IS NULL) of the same name
// when no project-scoped one is configured.
func (s *Store) GetMCPServerByName(ctx context.Context, projectID, name string) (*model.MCPServer, error) {
	if projectID != "" {
		row := s.db.QueryRowContext(ctx, mcpServerSelectCols+" WHERE project_id = ? AND name = ?", projectID, name)
		srv, err := scanMCPServer(row)
		if err == nil {
			return srv, nil
		}
		if !gobbyerrors.IsNotFound(err) {
			return nil, err
		}
	}
	row := s.db.QueryRowContext(ctx, mcpServerSelectCols+" WHERE project_id IS NULL AND name = ?", name)
	return scanMCPServer(row)
}

// ListMCPServersByProject lists every server scoped to a project, plus any
// globally-shared servers (project_id IS NULL).
func (s *Store) ListMCPServersByProject(ctx context.Context, projectID string) ([]*model.MCPServer, error) {
	rows, err := s.db.QueryContext(ctx, mcpServerSelectCols+`
		WHERE project_id = ? OR project_id IS NULL
		ORDER BY name ASC`, nullString(projectID))
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}
	defer rows.Close()

	var out []*model.MCPServer
	for rows.Next() {
		srv, err := scanMCPServerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

// UpdateMCPServer persists all mutable configuration fields.
func (s *Store) UpdateMCPServer(ctx context.Context, srv *model.MCPServer) error {
	argsJSON, err := json.Marshal(srv.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	envJSON, err := json.Marshal(srv.Env)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	now := time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE mcp_servers SET
			name = ?, transport = ?, command = ?, args = ?, url = ?, env = ?,
			enabled = ?, updated_at = ?
		WHERE id = ?`,
		srv.Name, string(srv.Transport), nullString(srv.Command), string(argsJSON),
		nullString(srv.URL), string(envJSON), boolToInt(srv.Enabled), formatTimeVal(now), srv.ID,
	)
	if err != nil {
		return fmt.Errorf("update mcp server: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("mcp_server", srv.ID)
	}
	srv.UpdatedAt = now
	return nil
}

// DeleteMCPServer removes a server configuration.
func (s *Store) DeleteMCPServer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mcp server: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("mcp_server", id)
	}
	return nil
}

func scanMCPServer(row *sql.Row) (*model.MCPServer, error) {
	var srv model.MCPServer
	var projectID, command, url sql.NullString
	var argsJSON, envJSON sql.NullString
	var transport string
	var enabled int
	var createdAt, updatedAt string

	err := row.Scan(&srv.ID, &projectID, &srv.Name, &transport, &command, &argsJSON, &url, &envJSON,
		&enabled, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("mcp_server", srv.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan mcp server: %w", err)
	}
	return hydrateMCPServer(&srv, projectID, command, url, transport, enabled, argsJSON, envJSON, createdAt, updatedAt)
}

func scanMCPServerRow(rows *sql.Rows) (*model.MCPServer, error) {
	var srv model.MCPServer
	var projectID, command, url sql.NullString
	var argsJSON, envJSON sql.NullString
	var transport string
	var enabled int
	var createdAt, updatedAt string

	err := rows.Scan(&srv.ID, &projectID, &srv.Name, &transport, &command, &argsJSON, &url, &envJSON,
		&enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan mcp server: %w", err)
	}
	return hydrateMCPServer(&srv, projectID, command, url, transport, enabled, argsJSON, envJSON, createdAt, updatedAt)
}

func hydrateMCPServer(srv *model.MCPServer, projectID, command, url sql.NullString, transport string, enabled int,
	argsJSON, envJSON sql.NullString, createdAt, updatedAt string) (*model.MCPServer, error) {
	srv.ProjectID = projectID.String
	srv.Command = command.String
	srv.URL = url.String
	srv.Transport = model.MCPTransport(transport)
	srv.Enabled = enabled != 0
	srv.CreatedAt = parseTimeVal(createdAt)
	srv.UpdatedAt = parseTimeVal(updatedAt)
	if argsJSON.Valid && argsJSON.String != "" {
		if err := json.Unmarshal([]byte(argsJSON.String), &srv.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if envJSON.Valid && envJSON.String != "" {
		if err := json.Unmarshal([]byte(envJSON.String), &srv.Env); err != nil {
			return nil, fmt.Errorf("unmarshal env: %w", err)
		}
	}
	return srv, nil
}
