package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
)

// toolMetricsOrderByAllowlist mirrors the original metrics module's
// get_top_tools validation: only these columns may be interpolated into an
// ORDER BY clause.
var toolMetricsOrderByAllowlist = map[string]string{
	"call_count":    "call_count",
	"success_count": "success_count",
	"avg_latency_ms": "avg_latency_ms",
}

// RecordToolCall upserts the (project, server, tool) counter row, called
// once per internal/mcpproxy CallTool invocation.
func (s *Store) RecordToolCall(ctx context.Context, projectID, serverName, toolName string, latencyMS int64, success bool) error {
	now := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, call_count, success_count, failure_count, total_latency_ms
		FROM tool_metrics WHERE server_name = ? AND tool_name = ? AND project_id IS ?`,
		serverName, toolName, nullString(projectID))

	var id string
	var callCount, successCount, failureCount int
	var totalLatency int64
	err := row.Scan(&id, &callCount, &successCount, &failureCount, &totalLatency)

	if err == sql.ErrNoRows {
		id = model.NewToolMetricsID()
		callCount, totalLatency = 1, latencyMS
		successCount, failureCount = 0, 0
		if success {
			successCount = 1
		} else {
			failureCount = 1
		}
		avg := float64(totalLatency) / float64(callCount)
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO tool_metrics (
				id, project_id, server_name, tool_name, call_count, success_count,
				failure_count, total_latency_ms, avg_latency_ms, last_called_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nullString(projectID), serverName, toolName, callCount, successCount,
			failureCount, totalLatency, avg, formatTimeVal(now), formatTimeVal(now), formatTimeVal(now),
		)
		if err != nil {
			return fmt.Errorf("insert tool metrics: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan tool metrics: %w", err)
	}

	callCount++
	totalLatency += latencyMS
	if success {
		successCount++
	} else {
		failureCount++
	}
	avg := float64(totalLatency) / float64(callCount)

	_, err = s.db.ExecContext(ctx, `
		UPDATE tool_metrics SET
			call_count = ?, success_count = ?, failure_count = ?, total_latency_ms = ?,
			avg_latency_ms = ?, last_called_at = ?, updated_at = ?
		WHERE id = ?`,
		callCount, successCount, failureCount, totalLatency, avg, formatTimeVal(now), formatTimeVal(now), id,
	)
	if err != nil {
		return fmt.Errorf("update tool metrics: %w", err)
	}
	return nil
}

const toolMetricsSelectCols = `
	SELECT id, project_id, server_name, tool_name, call_count, success_count,
		failure_count, total_latency_ms, avg_latency_ms, last_called_at,
		created_at, updated_at
	FROM tool_metrics`

// GetToolMetrics lists metrics rows matching the optional filters
// (empty string = unfiltered) along with an aggregate summary.
func (s *Store) GetToolMetrics(ctx context.Context, projectID, serverName, toolName string) ([]*model.ToolMetrics, model.ToolMetricsSummary, error) {
	query := toolMetricsSelectCols + " WHERE 1=1"
	var args []any
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	if serverName != "" {
		query += " AND server_name = ?"
		args = append(args, serverName)
	}
	if toolName != "" {
		query += " AND tool_name = ?"
		args = append(args, toolName)
	}
	query += " ORDER BY server_name ASC, tool_name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.ToolMetricsSummary{}, fmt.Errorf("list tool metrics: %w", err)
	}
	defer rows.Close()

	var out []*model.ToolMetrics
	var summary model.ToolMetricsSummary
	for rows.Next() {
		m, err := scanToolMetricsRow(rows)
		if err != nil {
			return nil, model.ToolMetricsSummary{}, err
		}
		out = append(out, m)
		summary.TotalCalls += m.CallCount
		summary.TotalSuccess += m.SuccessCount
		summary.TotalFailure += m.FailureCount
	}
	if err := rows.Err(); err != nil {
		return nil, model.ToolMetricsSummary{}, err
	}
	if summary.TotalCalls > 0 {
		summary.OverallSuccessRate = float64(summary.TotalSuccess) / float64(summary.TotalCalls)
	}
	return out, summary, nil
}

// GetTopTools returns the limit highest-ranked tools by orderBy, validated
// against an allowlist so the column name can never be attacker-controlled
// SQL. Unrecognized orderBy falls back to call_count.
func (s *Store) GetTopTools(ctx context.Context, projectID string, limit int, orderBy string) ([]*model.ToolMetrics, error) {
	col, ok := toolMetricsOrderByAllowlist[orderBy]
	if !ok {
		col = "call_count"
	}
	if limit <= 0 {
		limit = 10
	}

	query := toolMetricsSelectCols
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY " + col + " DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list top tools: %w", err)
	}
	defer rows.Close()

	var out []*model.ToolMetrics
	for rows.Next() {
		m, err := scanToolMetricsRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetToolSuccessRate returns the success rate for one (project, server,
// tool) tuple, or 0 if no calls have been recorded.
func (s *Store) GetToolSuccessRate(ctx context.Context, projectID, serverName, toolName string) (float64, error) {
	row := s.db.QueryRowContext(ctx, toolMetricsSelectCols+
		" WHERE server_name = ? AND tool_name = ? AND project_id IS ?",
		serverName, toolName, nullString(projectID))
	m, err := scanToolMetrics(row)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.SuccessRate(), nil
}

// ResetMetrics deletes metrics rows matching the optional filters
// (empty string = unfiltered), used to clear counters after a server's
// tool set changes.
func (s *Store) ResetMetrics(ctx context.Context, projectID, serverName string) error {
	query := "DELETE FROM tool_metrics WHERE 1=1"
	var args []any
	if projectID != "" {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	if serverName != "" {
		query += " AND server_name = ?"
		args = append(args, serverName)
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reset tool metrics: %w", err)
	}
	return nil
}

// CleanupOldMetrics deletes rows whose last_called_at is older than
// retentionDays, returning how many rows were removed.
func (s *Store) CleanupOldMetrics(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_metrics WHERE last_called_at IS NOT NULL AND last_called_at < ?`,
		formatTimeVal(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup tool metrics: %w", err)
	}
	return result.RowsAffected()
}

// RetentionStats summarizes the age distribution of recorded metrics,
// useful for deciding a CleanupOldMetrics retention window.
type RetentionStats struct {
	TotalRows       int        `json:"total_rows"`
	OldestLastCalled *time.Time `json:"oldest_last_called,omitempty"`
	NewestLastCalled *time.Time `json:"newest_last_called,omitempty"`
}

// GetRetentionStats reports the row count and the oldest/newest
// last_called_at across all recorded tool metrics.
func (s *Store) GetRetentionStats(ctx context.Context) (RetentionStats, error) {
	var stats RetentionStats
	var total int
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(last_called_at), MAX(last_called_at) FROM tool_metrics`,
	).Scan(&total, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("retention stats: %w", err)
	}
	stats.TotalRows = total
	if oldest.Valid && oldest.String != "" {
		t := parseTimeVal(oldest.String)
		stats.OldestLastCalled = &t
	}
	if newest.Valid && newest.String != "" {
		t := parseTimeVal(newest.String)
		stats.NewestLastCalled = &t
	}
	return stats, nil
}

func scanToolMetrics(row *sql.Row) (*model.ToolMetrics, error) {
	var m model.ToolMetrics
	var projectID, lastCalledAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &projectID, &m.ServerName, &m.ToolName, &m.CallCount, &m.SuccessCount,
		&m.FailureCount, &m.TotalLatencyMS, &m.AvgLatencyMS, &lastCalledAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return hydrateToolMetrics(&m, projectID, lastCalledAt, createdAt, updatedAt), nil
}

func scanToolMetricsRow(rows *sql.Rows) (*model.ToolMetrics, error) {
	var m model.ToolMetrics
	var projectID, lastCalledAt sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&m.ID, &projectID, &m.ServerName, &m.ToolName, &m.CallCount, &m.SuccessCount,
		&m.FailureCount, &m.TotalLatencyMS, &m.AvgLatencyMS, &lastCalledAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan tool metrics: %w", err)
	}
	return hydrateToolMetrics(&m, projectID, lastCalledAt, createdAt, updatedAt), nil
}

func hydrateToolMetrics(m *model.ToolMetrics, projectID, lastCalledAt sql.NullString, createdAt, updatedAt string) *model.ToolMetrics {
	m.ProjectID = projectID.String
	if lastCalledAt.Valid && lastCalledAt.String != "" {
		m.LastCalledAt = parseTimeVal(lastCalledAt.String)
	}
	m.CreatedAt = parseTimeVal(createdAt)
	m.UpdatedAt = parseTimeVal(updatedAt)
	return m
}
