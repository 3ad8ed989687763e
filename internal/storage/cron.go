package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// CreateCronJob inserts a new scheduled job.
func (s *Store) CreateCronJob(ctx context.Context, j *model.CronJob) error {
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs (
			id, project_id, name, schedule_type, cron_expr, interval_seconds, run_at,
			timezone, action_type, action_config, enabled, next_run_at, last_run_at,
			last_status, consecutive_failures, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, j.Name, string(j.ScheduleType), nullString(j.CronExpr),
		nullInt(j.IntervalSeconds), formatTime(j.RunAt), j.Timezone, j.ActionType, j.ActionConfig,
		boolToInt(j.Enabled), formatTime(j.NextRunAt), formatTime(j.LastRunAt),
		nullString(j.LastStatus), j.ConsecutiveFailures, nullString(j.Description),
		formatTimeVal(j.CreatedAt), formatTimeVal(j.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create cron job: %w", err)
	}
	return nil
}

const cronJobSelectCols = `
	SELECT id, project_id, name, schedule_type, cron_expr, interval_seconds, run_at,
		timezone, action_type, action_config, enabled, next_run_at, last_run_at,
		last_status, consecutive_failures, description, created_at, updated_at
	FROM cron_jobs`

// GetCronJob fetches a job by id.
func (s *Store) GetCronJob(ctx context.Context, id string) (*model.CronJob, error) {
	row := s.db.QueryRowContext(ctx, cronJobSelectCols+" WHERE id = ?", id)
	return scanCronJob(row)
}

// ListDueCronJobs returns enabled jobs whose next_run_at has passed.
func (s *Store) ListDueCronJobs(ctx context.Context, now time.Time) ([]*model.CronJob, error) {
	rows, err := s.db.QueryContext(ctx, cronJobSelectCols+`
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC`, formatTimeVal(now))
	if err != nil {
		return nil, fmt.Errorf("list due cron jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.CronJob
	for rows.Next() {
		j, err := scanCronJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListCronJobsByProject lists every job for a project.
func (s *Store) ListCronJobsByProject(ctx context.Context, projectID string) ([]*model.CronJob, error) {
	rows, err := s.db.QueryContext(ctx, cronJobSelectCols+" WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.CronJob
	for rows.Next() {
		j, err := scanCronJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateCronJob persists every mutable field on j, scheduling definition
// and run state alike, so both the scheduler (after a firing) and the
// gobby cron edit/toggle commands can share one update path.
func (s *Store) UpdateCronJob(ctx context.Context, j *model.CronJob) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET
			name = ?, schedule_type = ?, cron_expr = ?, interval_seconds = ?, run_at = ?,
			timezone = ?, action_type = ?, action_config = ?, description = ?,
			enabled = ?, next_run_at = ?, last_run_at = ?, last_status = ?,
			consecutive_failures = ?, updated_at = ?
		WHERE id = ?`,
		j.Name, string(j.ScheduleType), nullString(j.CronExpr), nullInt(j.IntervalSeconds),
		formatTime(j.RunAt), j.Timezone, j.ActionType, j.ActionConfig, nullString(j.Description),
		boolToInt(j.Enabled), formatTime(j.NextRunAt), formatTime(j.LastRunAt),
		nullString(j.LastStatus), j.ConsecutiveFailures, formatTimeVal(now), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update cron job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("cron_job", j.ID)
	}
	j.UpdatedAt = now
	return nil
}

// DeleteCronJob removes a job and its run history.
func (s *Store) DeleteCronJob(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cron job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("cron_job", id)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM cron_runs WHERE cron_job_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cron runs for job: %w", err)
	}
	return nil
}

// CountRunningCronRuns returns the number of cron runs currently in
// status=running, used to enforce the scheduler's global concurrency cap.
func (s *Store) CountRunningCronRuns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cron_runs WHERE status = 'running'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count running cron runs: %w", err)
	}
	return n, nil
}

func scanCronJob(row *sql.Row) (*model.CronJob, error) {
	var j model.CronJob
	var cronExpr, lastStatus, description sql.NullString
	var intervalSeconds sql.NullInt64
	var runAt, nextRunAt, lastRunAt sql.NullString
	var scheduleType string
	var createdAt, updatedAt string
	var enabled int

	err := row.Scan(&j.ID, &j.ProjectID, &j.Name, &scheduleType, &cronExpr, &intervalSeconds, &runAt,
		&j.Timezone, &j.ActionType, &j.ActionConfig, &enabled, &nextRunAt, &lastRunAt,
		&lastStatus, &j.ConsecutiveFailures, &description, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("cron_job", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan cron job: %w", err)
	}
	return hydrateCronJob(&j, scheduleType, cronExpr, intervalSeconds, runAt, nextRunAt, lastRunAt, lastStatus, description, enabled, createdAt, updatedAt), nil
}

func scanCronJobRow(rows *sql.Rows) (*model.CronJob, error) {
	var j model.CronJob
	var cronExpr, lastStatus, description sql.NullString
	var intervalSeconds sql.NullInt64
	var runAt, nextRunAt, lastRunAt sql.NullString
	var scheduleType string
	var createdAt, updatedAt string
	var enabled int

	err := rows.Scan(&j.ID, &j.ProjectID, &j.Name, &scheduleType, &cronExpr, &intervalSeconds, &runAt,
		&j.Timezone, &j.ActionType, &j.ActionConfig, &enabled, &nextRunAt, &lastRunAt,
		&lastStatus, &j.ConsecutiveFailures, &description, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan cron job: %w", err)
	}
	return hydrateCronJob(&j, scheduleType, cronExpr, intervalSeconds, runAt, nextRunAt, lastRunAt, lastStatus, description, enabled, createdAt, updatedAt), nil
}

func hydrateCronJob(j *model.CronJob, scheduleType string, cronExpr sql.NullString, intervalSeconds sql.NullInt64, runAt, nextRunAt, lastRunAt, lastStatus, description sql.NullString, enabled int, createdAt, updatedAt string) *model.CronJob {
	j.ScheduleType = model.ScheduleType(scheduleType)
	j.CronExpr = cronExpr.String
	if intervalSeconds.Valid {
		j.IntervalSeconds = int(intervalSeconds.Int64)
	}
	j.RunAt = parseTime(runAt)
	j.NextRunAt = parseTime(nextRunAt)
	j.LastRunAt = parseTime(lastRunAt)
	j.LastStatus = lastStatus.String
	j.Description = description.String
	j.Enabled = enabled != 0
	j.CreatedAt = parseTimeVal(createdAt)
	j.UpdatedAt = parseTimeVal(updatedAt)
	return j
}

// CreateCronRun inserts a new firing record for a job.
func (s *Store) CreateCronRun(ctx context.Context, r *model.CronRun) error {
	r.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_runs (
			id, cron_job_id, triggered_at, started_at, completed_at, status,
			output, error, agent_run_id, pipeline_execution_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CronJobID, formatTimeVal(r.TriggeredAt), formatTime(r.StartedAt), formatTime(r.CompletedAt),
		r.Status, nullString(r.Output), nullString(r.Error), nullString(r.AgentRunID),
		nullString(r.PipelineExecutionID), formatTimeVal(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create cron run: %w", err)
	}
	return nil
}

// UpdateCronRun persists the outcome fields of a run.
func (s *Store) UpdateCronRun(ctx context.Context, r *model.CronRun) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cron_runs SET
			started_at = ?, completed_at = ?, status = ?, output = ?, error = ?,
			agent_run_id = ?, pipeline_execution_id = ?
		WHERE id = ?`,
		formatTime(r.StartedAt), formatTime(r.CompletedAt), r.Status, nullString(r.Output),
		nullString(r.Error), nullString(r.AgentRunID), nullString(r.PipelineExecutionID), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update cron run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("cron_run", r.ID)
	}
	return nil
}

// ListCronRunsByJob lists runs for a job, most recent first.
func (s *Store) ListCronRunsByJob(ctx context.Context, cronJobID string) ([]*model.CronRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cron_job_id, triggered_at, started_at, completed_at, status,
			output, error, agent_run_id, pipeline_execution_id, created_at
		FROM cron_runs WHERE cron_job_id = ? ORDER BY created_at DESC`, cronJobID)
	if err != nil {
		return nil, fmt.Errorf("list cron runs: %w", err)
	}
	defer rows.Close()

	var out []*model.CronRun
	for rows.Next() {
		var r model.CronRun
		var startedAt, completedAt, output, errStr, agentRunID, pipelineExecID sql.NullString
		var triggeredAt, createdAt string
		if err := rows.Scan(&r.ID, &r.CronJobID, &triggeredAt, &startedAt, &completedAt, &r.Status,
			&output, &errStr, &agentRunID, &pipelineExecID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cron run: %w", err)
		}
		r.TriggeredAt = parseTimeVal(triggeredAt)
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseTime(completedAt)
		r.Output = output.String
		r.Error = errStr.String
		r.AgentRunID = agentRunID.String
		r.PipelineExecutionID = pipelineExecID.String
		r.CreatedAt = parseTimeVal(createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CleanupOldCronRuns deletes cron_runs older than the retention window,
// returning the number of rows removed.
func (s *Store) CleanupOldCronRuns(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := s.db.ExecContext(ctx, `DELETE FROM cron_runs WHERE created_at < ?`, formatTimeVal(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup old cron runs: %w", err)
	}
	return result.RowsAffected()
}
