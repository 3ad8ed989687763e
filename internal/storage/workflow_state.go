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

// GetWorkflowState fetches the state row for one (sessionID, workflowName)
// instance.
func (s *Store) GetWorkflowState(ctx context.Context, sessionID, workflowName string) (*model.WorkflowState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, workflow_name, step, step_entered_at, step_action_count,
			total_action_count, observations, variables, context_injected,
			reflection_pending, updated_at
		FROM workflow_states WHERE session_id = ? AND workflow_name = ?`, sessionID, workflowName)
	return scanWorkflowState(row)
}

// ListWorkflowStatesForSession returns every active workflow instance
// attached to a session, used by the engine's priority-sorted fanout.
func (s *Store) ListWorkflowStatesForSession(ctx context.Context, sessionID string) ([]*model.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, workflow_name, step, step_entered_at, step_action_count,
			total_action_count, observations, variables, context_injected,
			reflection_pending, updated_at
		FROM workflow_states WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list workflow states: %w", err)
	}
	defer rows.Close()

	var out []*model.WorkflowState
	for rows.Next() {
		ws, err := scanWorkflowStateRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// PutWorkflowState inserts or fully replaces a workflow state row.
func (s *Store) PutWorkflowState(ctx context.Context, ws *model.WorkflowState) error {
	ws.UpdatedAt = time.Now()

	obsJSON, err := json.Marshal(ws.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	varsJSON, err := json.Marshal(ws.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_states (
			session_id, workflow_name, step, step_entered_at, step_action_count,
			total_action_count, observations, variables, context_injected,
			reflection_pending, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, workflow_name) DO UPDATE SET
			step = excluded.step,
			step_entered_at = excluded.step_entered_at,
			step_action_count = excluded.step_action_count,
			total_action_count = excluded.total_action_count,
			observations = excluded.observations,
			variables = excluded.variables,
			context_injected = excluded.context_injected,
			reflection_pending = excluded.reflection_pending,
			updated_at = excluded.updated_at`,
		ws.SessionID, ws.WorkflowName, ws.Step, formatTimeVal(ws.StepEnteredAt),
		ws.StepActionCount, ws.TotalActionCount, string(obsJSON), string(varsJSON),
		boolToInt(ws.ContextInjected), boolToInt(ws.ReflectionPending), formatTimeVal(ws.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put workflow state: %w", err)
	}
	return nil
}

// DeleteWorkflowState removes a workflow instance, used when a workflow
// completes or is explicitly stopped.
func (s *Store) DeleteWorkflowState(ctx context.Context, sessionID, workflowName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_states WHERE session_id = ? AND workflow_name = ?`, sessionID, workflowName)
	if err != nil {
		return fmt.Errorf("delete workflow state: %w", err)
	}
	return nil
}

// UpdateOrchestrationLists performs a single read-modify-write transaction
// over the three orchestration-list variables (spawned_agents,
// completed_agents, failed_agents). ReplaceSpawned takes precedence over
// RemoveFromSpawned. All unrelated variables are preserved verbatim.
type OrchestrationListUpdate struct {
	AppendToSpawned   []string
	ReplaceSpawned    []string
	HasReplaceSpawned bool
	RemoveFromSpawned []string
	AppendToCompleted []string
	AppendToFailed    []string
}

func (s *Store) UpdateOrchestrationLists(ctx context.Context, sessionID, workflowName string, upd OrchestrationListUpdate) (*model.WorkflowState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ws, err := s.getWorkflowStateTx(ctx, tx, sessionID, workflowName)
	if err != nil {
		return nil, err
	}

	spawned := stringListVar(ws.Variables, model.VarSpawnedAgents)
	completed := stringListVar(ws.Variables, model.VarCompletedAgents)
	failed := stringListVar(ws.Variables, model.VarFailedAgents)

	switch {
	case upd.HasReplaceSpawned:
		spawned = upd.ReplaceSpawned
	case len(upd.RemoveFromSpawned) > 0:
		spawned = removeAll(spawned, upd.RemoveFromSpawned)
	}
	spawned = append(spawned, upd.AppendToSpawned...)
	completed = append(completed, upd.AppendToCompleted...)
	failed = append(failed, upd.AppendToFailed...)

	if ws.Variables == nil {
		ws.Variables = map[string]any{}
	}
	ws.Variables[model.VarSpawnedAgents] = spawned
	ws.Variables[model.VarCompletedAgents] = completed
	ws.Variables[model.VarFailedAgents] = failed

	if err := s.putWorkflowStateTx(ctx, tx, ws); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ws, nil
}

// CheckAndReserveSlots computes active := len(spawned_agents) + _reserved_slots
// and reserves min(requested, maxConcurrent-active) slots atomically,
// returning the number actually reserved. Prevents TOCTOU between the slot
// check and the agent spawn when two dispatchers race on one session.
func (s *Store) CheckAndReserveSlots(ctx context.Context, sessionID, workflowName string, maxConcurrent, requested int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ws, err := s.getWorkflowStateTx(ctx, tx, sessionID, workflowName)
	if err != nil {
		return 0, err
	}

	spawned := stringListVar(ws.Variables, model.VarSpawnedAgents)
	reserved := intVar(ws.Variables, model.VarReservedSlots)
	active := len(spawned) + reserved

	available := maxConcurrent - active
	if available < 0 {
		available = 0
	}
	toReserve := requested
	if toReserve > available {
		toReserve = available
	}
	if toReserve < 0 {
		toReserve = 0
	}

	if ws.Variables == nil {
		ws.Variables = map[string]any{}
	}
	ws.Variables[model.VarReservedSlots] = reserved + toReserve

	if err := s.putWorkflowStateTx(ctx, tx, ws); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return toReserve, nil
}

// ReleaseReservedSlots decrements _reserved_slots by n, flooring at zero.
func (s *Store) ReleaseReservedSlots(ctx context.Context, sessionID, workflowName string, n int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ws, err := s.getWorkflowStateTx(ctx, tx, sessionID, workflowName)
	if err != nil {
		return err
	}

	reserved := intVar(ws.Variables, model.VarReservedSlots) - n
	if reserved < 0 {
		reserved = 0
	}
	if ws.Variables == nil {
		ws.Variables = map[string]any{}
	}
	ws.Variables[model.VarReservedSlots] = reserved

	if err := s.putWorkflowStateTx(ctx, tx, ws); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) getWorkflowStateTx(ctx context.Context, tx *sql.Tx, sessionID, workflowName string) (*model.WorkflowState, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT session_id, workflow_name, step, step_entered_at, step_action_count,
			total_action_count, observations, variables, context_injected,
			reflection_pending, updated_at
		FROM workflow_states WHERE session_id = ? AND workflow_name = ?`, sessionID, workflowName)
	return scanWorkflowState(row)
}

func (s *Store) putWorkflowStateTx(ctx context.Context, tx *sql.Tx, ws *model.WorkflowState) error {
	ws.UpdatedAt = time.Now()

	obsJSON, err := json.Marshal(ws.Observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	varsJSON, err := json.Marshal(ws.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE workflow_states SET
			step = ?, step_entered_at = ?, step_action_count = ?, total_action_count = ?,
			observations = ?, variables = ?, context_injected = ?, reflection_pending = ?,
			updated_at = ?
		WHERE session_id = ? AND workflow_name = ?`,
		ws.Step, formatTimeVal(ws.StepEnteredAt), ws.StepActionCount, ws.TotalActionCount,
		string(obsJSON), string(varsJSON), boolToInt(ws.ContextInjected), boolToInt(ws.ReflectionPending),
		formatTimeVal(ws.UpdatedAt), ws.SessionID, ws.WorkflowName,
	)
	if err != nil {
		return fmt.Errorf("update workflow state: %w", err)
	}
	return nil
}

func scanWorkflowState(row *sql.Row) (*model.WorkflowState, error) {
	var ws model.WorkflowState
	var stepEnteredAt, updatedAt string
	var obsJSON, varsJSON sql.NullString
	var contextInjected, reflectionPending int

	err := row.Scan(
		&ws.SessionID, &ws.WorkflowName, &ws.Step, &stepEnteredAt, &ws.StepActionCount,
		&ws.TotalActionCount, &obsJSON, &varsJSON, &contextInjected, &reflectionPending, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("workflow_state", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow state: %w", err)
	}
	return hydrateWorkflowState(&ws, obsJSON, varsJSON, contextInjected, reflectionPending, stepEnteredAt, updatedAt)
}

func scanWorkflowStateRow(rows *sql.Rows) (*model.WorkflowState, error) {
	var ws model.WorkflowState
	var stepEnteredAt, updatedAt string
	var obsJSON, varsJSON sql.NullString
	var contextInjected, reflectionPending int

	err := rows.Scan(
		&ws.SessionID, &ws.WorkflowName, &ws.Step, &stepEnteredAt, &ws.StepActionCount,
		&ws.TotalActionCount, &obsJSON, &varsJSON, &contextInjected, &reflectionPending, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan workflow state: %w", err)
	}
	return hydrateWorkflowState(&ws, obsJSON, varsJSON, contextInjected, reflectionPending, stepEnteredAt, updatedAt)
}

func hydrateWorkflowState(ws *model.WorkflowState, obsJSON, varsJSON sql.NullString, contextInjected, reflectionPending int, stepEnteredAt, updatedAt string) (*model.WorkflowState, error) {
	ws.ContextInjected = contextInjected != 0
	ws.ReflectionPending = reflectionPending != 0
	ws.StepEnteredAt = parseTimeVal(stepEnteredAt)
	ws.UpdatedAt = parseTimeVal(updatedAt)

	if obsJSON.Valid && obsJSON.String != "" {
		if err := json.Unmarshal([]byte(obsJSON.String), &ws.Observations); err != nil {
			return nil, fmt.Errorf("unmarshal observations: %w", err)
		}
	}
	ws.Variables = map[string]any{}
	if varsJSON.Valid && varsJSON.String != "" {
		if err := json.Unmarshal([]byte(varsJSON.String), &ws.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return ws, nil
}

func stringListVar(vars map[string]any, key string) []string {
	raw, ok := vars[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func intVar(vars map[string]any, key string) int {
	raw, ok := vars[key]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func removeAll(list, remove []string) []string {
	removeSet := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		removeSet[r] = struct{}{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if _, skip := removeSet[item]; !skip {
			out = append(out, item)
		}
	}
	return out
}
