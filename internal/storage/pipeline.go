package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// CreatePipelineExecution inserts a new execution row with status=pending.
func (s *Store) CreatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error {
	now := time.Now()
	pe.CreatedAt = now
	pe.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_executions (
			id, pipeline_name, project_id, status, inputs_json, outputs_json,
			resume_token, session_id, parent_execution_id, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pe.ID, pe.PipelineName, pe.ProjectID, string(pe.Status), nullString(pe.InputsJSON),
		nullString(pe.OutputsJSON), nullString(pe.ResumeToken), nullString(pe.SessionID),
		nullString(pe.ParentExecutionID), formatTimeVal(pe.CreatedAt), formatTimeVal(pe.UpdatedAt),
		formatTime(pe.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create pipeline execution: %w", err)
	}
	return nil
}

const pipelineExecSelectCols = `
	SELECT id, pipeline_name, project_id, status, inputs_json, outputs_json,
		resume_token, session_id, parent_execution_id, created_at, updated_at, completed_at
	FROM pipeline_executions`

// GetPipelineExecution fetches an execution by id.
func (s *Store) GetPipelineExecution(ctx context.Context, id string) (*model.PipelineExecution, error) {
	row := s.db.QueryRowContext(ctx, pipelineExecSelectCols+" WHERE id = ?", id)
	return scanPipelineExecution(row)
}

// GetPipelineExecutionByResumeToken looks an execution up by its opaque
// resume token, used when an approval-gate callback resumes a paused run.
func (s *Store) GetPipelineExecutionByResumeToken(ctx context.Context, token string) (*model.PipelineExecution, error) {
	row := s.db.QueryRowContext(ctx, pipelineExecSelectCols+" WHERE resume_token = ?", token)
	return scanPipelineExecution(row)
}

// ListPipelineExecutionsByProject lists executions for a project, most
// recent first.
func (s *Store) ListPipelineExecutionsByProject(ctx context.Context, projectID string) ([]*model.PipelineExecution, error) {
	rows, err := s.db.QueryContext(ctx, pipelineExecSelectCols+" WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline executions: %w", err)
	}
	defer rows.Close()

	var out []*model.PipelineExecution
	for rows.Next() {
		pe, err := scanPipelineExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pe)
	}
	return out, rows.Err()
}

// UpdatePipelineExecution persists all mutable fields and bumps UpdatedAt.
func (s *Store) UpdatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_executions SET
			status = ?, outputs_json = ?, resume_token = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(pe.Status), nullString(pe.OutputsJSON), nullString(pe.ResumeToken),
		formatTimeVal(now), formatTime(pe.CompletedAt), pe.ID,
	)
	if err != nil {
		return fmt.Errorf("update pipeline execution: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("pipeline_execution", pe.ID)
	}
	pe.UpdatedAt = now
	return nil
}

func scanPipelineExecution(row *sql.Row) (*model.PipelineExecution, error) {
	var pe model.PipelineExecution
	var inputsJSON, outputsJSON, resumeToken, sessionID, parentID sql.NullString
	var status, createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(&pe.ID, &pe.PipelineName, &pe.ProjectID, &status, &inputsJSON, &outputsJSON,
		&resumeToken, &sessionID, &parentID, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("pipeline_execution", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline execution: %w", err)
	}
	return hydratePipelineExecution(&pe, status, inputsJSON, outputsJSON, resumeToken, sessionID, parentID, createdAt, updatedAt, completedAt), nil
}

func scanPipelineExecutionRow(rows *sql.Rows) (*model.PipelineExecution, error) {
	var pe model.PipelineExecution
	var inputsJSON, outputsJSON, resumeToken, sessionID, parentID sql.NullString
	var status, createdAt, updatedAt string
	var completedAt sql.NullString

	err := rows.Scan(&pe.ID, &pe.PipelineName, &pe.ProjectID, &status, &inputsJSON, &outputsJSON,
		&resumeToken, &sessionID, &parentID, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, fmt.Errorf("scan pipeline execution: %w", err)
	}
	return hydratePipelineExecution(&pe, status, inputsJSON, outputsJSON, resumeToken, sessionID, parentID, createdAt, updatedAt, completedAt), nil
}

func hydratePipelineExecution(pe *model.PipelineExecution, status string, inputsJSON, outputsJSON, resumeToken, sessionID, parentID sql.NullString, createdAt, updatedAt string, completedAt sql.NullString) *model.PipelineExecution {
	pe.Status = model.PipelineExecutionStatus(status)
	pe.InputsJSON = inputsJSON.String
	pe.OutputsJSON = outputsJSON.String
	pe.ResumeToken = resumeToken.String
	pe.SessionID = sessionID.String
	pe.ParentExecutionID = parentID.String
	pe.CreatedAt = parseTimeVal(createdAt)
	pe.UpdatedAt = parseTimeVal(updatedAt)
	pe.CompletedAt = parseTime(completedAt)
	return pe
}

// CreateStepExecution inserts a step record for an execution.
func (s *Store) CreateStepExecution(ctx context.Context, se *model.StepExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_executions (
			id, execution_id, step_id, status, started_at, completed_at,
			input_json, output_json, error, approval_token, approved_by, approved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		se.ID, se.ExecutionID, se.StepID, string(se.Status), formatTime(se.StartedAt), formatTime(se.CompletedAt),
		nullString(se.InputJSON), nullString(se.OutputJSON), nullString(se.Error),
		nullString(se.ApprovalToken), nullString(se.ApprovedBy), formatTime(se.ApprovedAt),
	)
	if err != nil {
		return fmt.Errorf("create step execution: %w", err)
	}
	return nil
}

const stepExecSelectCols = `
	SELECT id, execution_id, step_id, status, started_at, completed_at,
		input_json, output_json, error, approval_token, approved_by, approved_at
	FROM step_executions`

// GetStepExecution fetches a step execution by id.
func (s *Store) GetStepExecution(ctx context.Context, id string) (*model.StepExecution, error) {
	row := s.db.QueryRowContext(ctx, stepExecSelectCols+" WHERE id = ?", id)
	return scanStepExecution(row)
}

// GetStepExecutionByApprovalToken looks a step up by its approval token.
func (s *Store) GetStepExecutionByApprovalToken(ctx context.Context, token string) (*model.StepExecution, error) {
	row := s.db.QueryRowContext(ctx, stepExecSelectCols+" WHERE approval_token = ?", token)
	return scanStepExecution(row)
}

// ListStepExecutions returns the steps of an execution in insertion order.
func (s *Store) ListStepExecutions(ctx context.Context, executionID string) ([]*model.StepExecution, error) {
	rows, err := s.db.QueryContext(ctx, stepExecSelectCols+" WHERE execution_id = ? ORDER BY rowid ASC", executionID)
	if err != nil {
		return nil, fmt.Errorf("list step executions: %w", err)
	}
	defer rows.Close()

	var out []*model.StepExecution
	for rows.Next() {
		se, err := scanStepExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// UpdateStepExecution persists all mutable fields of a step execution.
func (s *Store) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE step_executions SET
			status = ?, started_at = ?, completed_at = ?, input_json = ?, output_json = ?,
			error = ?, approval_token = ?, approved_by = ?, approved_at = ?
		WHERE id = ?`,
		string(se.Status), formatTime(se.StartedAt), formatTime(se.CompletedAt),
		nullString(se.InputJSON), nullString(se.OutputJSON), nullString(se.Error),
		nullString(se.ApprovalToken), nullString(se.ApprovedBy), formatTime(se.ApprovedAt), se.ID,
	)
	if err != nil {
		return fmt.Errorf("update step execution: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("step_execution", se.ID)
	}
	return nil
}

func scanStepExecution(row *sql.Row) (*model.StepExecution, error) {
	var se model.StepExecution
	var startedAt, completedAt, inputJSON, outputJSON, errStr, approvalToken, approvedBy, approvedAt sql.NullString
	var status string

	err := row.Scan(&se.ID, &se.ExecutionID, &se.StepID, &status, &startedAt, &completedAt,
		&inputJSON, &outputJSON, &errStr, &approvalToken, &approvedBy, &approvedAt)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("step_execution", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan step execution: %w", err)
	}
	return hydrateStepExecution(&se, status, startedAt, completedAt, inputJSON, outputJSON, errStr, approvalToken, approvedBy, approvedAt), nil
}

func scanStepExecutionRow(rows *sql.Rows) (*model.StepExecution, error) {
	var se model.StepExecution
	var startedAt, completedAt, inputJSON, outputJSON, errStr, approvalToken, approvedBy, approvedAt sql.NullString
	var status string

	err := rows.Scan(&se.ID, &se.ExecutionID, &se.StepID, &status, &startedAt, &completedAt,
		&inputJSON, &outputJSON, &errStr, &approvalToken, &approvedBy, &approvedAt)
	if err != nil {
		return nil, fmt.Errorf("scan step execution: %w", err)
	}
	return hydrateStepExecution(&se, status, startedAt, completedAt, inputJSON, outputJSON, errStr, approvalToken, approvedBy, approvedAt), nil
}

func hydrateStepExecution(se *model.StepExecution, status string, startedAt, completedAt, inputJSON, outputJSON, errStr, approvalToken, approvedBy, approvedAt sql.NullString) *model.StepExecution {
	se.Status = model.StepExecutionStatus(status)
	se.StartedAt = parseTime(startedAt)
	se.CompletedAt = parseTime(completedAt)
	se.InputJSON = inputJSON.String
	se.OutputJSON = outputJSON.String
	se.Error = errStr.String
	se.ApprovalToken = approvalToken.String
	se.ApprovedBy = approvedBy.String
	se.ApprovedAt = parseTime(approvedAt)
	return se
}
