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

// CreateTask allocates the next seq_num for the project and inserts the
// task. Commits and Labels default to empty rather than null so callers
// never need a nil check.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Commits == nil {
		t.Commits = []model.TaskCommit{}
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(seq_num) FROM tasks WHERE project_id = ?`, t.ProjectID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("allocate seq_num: %w", err)
	}
	t.SeqNum = int(maxSeq.Int64) + 1

	commitsJSON, err := json.Marshal(t.Commits)
	if err != nil {
		return fmt.Errorf("marshal commits: %w", err)
	}
	labelsJSON, err := json.Marshal(t.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, seq_num, project_id, title, description, status, priority, task_type,
			category, parent_task_id, commits, validation_criteria, validation_status,
			expansion_status, expansion_context, requires_user_review, labels,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SeqNum, t.ProjectID, t.Title, nullString(t.Description), string(t.Status),
		t.Priority, t.TaskType, nullString(t.Category), nullString(t.ParentTaskID),
		string(commitsJSON), nullString(t.ValidationCriteria), nullString(string(t.ValidationStatus)),
		nullString(string(t.ExpansionStatus)), nullString(t.ExpansionContext),
		boolToInt(t.RequiresUserReview), string(labelsJSON),
		formatTimeVal(t.CreatedAt), formatTimeVal(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return tx.Commit()
}

const taskSelectCols = `
	SELECT id, seq_num, project_id, title, description, status, priority, task_type,
		category, parent_task_id, commits, validation_criteria, validation_status,
		expansion_status, expansion_context, requires_user_review, labels,
		created_at, updated_at
	FROM tasks`

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectCols+" WHERE id = ?", id)
	return scanTask(row)
}

// GetTaskBySeqNum fetches a task by its per-project sequence number, the
// "#N" short reference form.
func (s *Store) GetTaskBySeqNum(ctx context.Context, projectID string, seqNum int) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectCols+" WHERE project_id = ? AND seq_num = ?", projectID, seqNum)
	return scanTask(row)
}

// ListChildTasks returns the direct children of parentID ordered by seq_num,
// used both for display and for dotted-path reference resolution.
func (s *Store) ListChildTasks(ctx context.Context, projectID, parentID string) ([]*model.Task, error) {
	var rows *sql.Rows
	var err error
	if parentID == "" {
		rows, err = s.db.QueryContext(ctx,
			taskSelectCols+" WHERE project_id = ? AND parent_task_id IS NULL ORDER BY seq_num ASC", projectID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			taskSelectCols+" WHERE project_id = ? AND parent_task_id = ? ORDER BY seq_num ASC", projectID, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list child tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTaskChildrenByID returns the tasks whose parent_task_id is taskID.
func (s *Store) ListTaskChildrenByID(ctx context.Context, taskID string) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectCols+" WHERE parent_task_id = ? ORDER BY seq_num ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("list task children: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasksByProject returns every task in a project ordered by seq_num.
func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectCols+" WHERE project_id = ? ORDER BY seq_num ASC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdateTask persists all mutable fields of t and bumps UpdatedAt.
func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	now := time.Now()

	commitsJSON, err := json.Marshal(t.Commits)
	if err != nil {
		return fmt.Errorf("marshal commits: %w", err)
	}
	labelsJSON, err := json.Marshal(t.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?, description = ?, status = ?, priority = ?, task_type = ?,
			category = ?, parent_task_id = ?, commits = ?, validation_criteria = ?,
			validation_status = ?, expansion_status = ?, expansion_context = ?,
			requires_user_review = ?, labels = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, nullString(t.Description), string(t.Status), t.Priority, t.TaskType,
		nullString(t.Category), nullString(t.ParentTaskID), string(commitsJSON),
		nullString(t.ValidationCriteria), nullString(string(t.ValidationStatus)),
		nullString(string(t.ExpansionStatus)), nullString(t.ExpansionContext),
		boolToInt(t.RequiresUserReview), string(labelsJSON), formatTimeVal(now), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return gobbyerrors.NewNotFoundError("task", t.ID)
	}
	t.UpdatedAt = now
	return nil
}

func scanTask(row *sql.Row) (*model.Task, error) {
	var t model.Task
	var description, category, parentID, validationCriteria, validationStatus sql.NullString
	var expansionStatus, expansionContext sql.NullString
	var commitsJSON, labelsJSON string
	var status string
	var requiresReview int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.SeqNum, &t.ProjectID, &t.Title, &description, &status, &t.Priority, &t.TaskType,
		&category, &parentID, &commitsJSON, &validationCriteria, &validationStatus,
		&expansionStatus, &expansionContext, &requiresReview, &labelsJSON,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, gobbyerrors.NewNotFoundError("task", "")
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return hydrateTask(&t, description, category, parentID, validationCriteria, validationStatus,
		expansionStatus, expansionContext, commitsJSON, labelsJSON, status, requiresReview, createdAt, updatedAt)
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var out []*model.Task
	for rows.Next() {
		var t model.Task
		var description, category, parentID, validationCriteria, validationStatus sql.NullString
		var expansionStatus, expansionContext sql.NullString
		var commitsJSON, labelsJSON string
		var status string
		var requiresReview int
		var createdAt, updatedAt string

		if err := rows.Scan(
			&t.ID, &t.SeqNum, &t.ProjectID, &t.Title, &description, &status, &t.Priority, &t.TaskType,
			&category, &parentID, &commitsJSON, &validationCriteria, &validationStatus,
			&expansionStatus, &expansionContext, &requiresReview, &labelsJSON,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		full, err := hydrateTask(&t, description, category, parentID, validationCriteria, validationStatus,
			expansionStatus, expansionContext, commitsJSON, labelsJSON, status, requiresReview, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, rows.Err()
}

func hydrateTask(
	t *model.Task,
	description, category, parentID, validationCriteria, validationStatus sql.NullString,
	expansionStatus, expansionContext sql.NullString,
	commitsJSON, labelsJSON, status string,
	requiresReview int,
	createdAt, updatedAt string,
) (*model.Task, error) {
	t.Description = description.String
	t.Category = category.String
	t.ParentTaskID = parentID.String
	t.ValidationCriteria = validationCriteria.String
	t.ValidationStatus = model.ValidationStatus(validationStatus.String)
	t.ExpansionStatus = model.ExpansionStatus(expansionStatus.String)
	t.ExpansionContext = expansionContext.String
	t.Status = model.TaskStatus(status)
	t.RequiresUserReview = requiresReview != 0
	t.CreatedAt = parseTimeVal(createdAt)
	t.UpdatedAt = parseTimeVal(updatedAt)

	if commitsJSON != "" {
		if err := json.Unmarshal([]byte(commitsJSON), &t.Commits); err != nil {
			return nil, fmt.Errorf("unmarshal commits: %w", err)
		}
	}
	if labelsJSON != "" {
		if err := json.Unmarshal([]byte(labelsJSON), &t.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	return t, nil
}

// CreateTaskDependency inserts a directed edge between two tasks.
func (s *Store) CreateTaskDependency(ctx context.Context, d *model.TaskDependency) error {
	d.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_dependencies (id, from_task_id, to_task_id, dep_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.FromTaskID, d.ToTaskID, string(d.DepType), formatTimeVal(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create task dependency: %w", err)
	}
	return nil
}

// ListDependenciesFrom returns every dependency edge originating at taskID.
func (s *Store) ListDependenciesFrom(ctx context.Context, taskID string) ([]*model.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_task_id, to_task_id, dep_type, created_at
		FROM task_dependencies WHERE from_task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []*model.TaskDependency
	for rows.Next() {
		var d model.TaskDependency
		var depType, createdAt string
		if err := rows.Scan(&d.ID, &d.FromTaskID, &d.ToTaskID, &depType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.DepType = model.DepType(depType)
		d.CreatedAt = parseTimeVal(createdAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ListOpenBlockers returns the tasks that block taskID and are not closed,
// used by the task-close validator.
func (s *Store) ListOpenBlockers(ctx context.Context, taskID string) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tasks.id, tasks.seq_num, tasks.project_id, tasks.title, tasks.description,
			tasks.status, tasks.priority, tasks.task_type, tasks.category, tasks.parent_task_id,
			tasks.commits, tasks.validation_criteria, tasks.validation_status,
			tasks.expansion_status, tasks.expansion_context, tasks.requires_user_review,
			tasks.labels, tasks.created_at, tasks.updated_at
		FROM tasks
		JOIN task_dependencies td ON td.to_task_id = tasks.id
		WHERE td.from_task_id = ? AND td.dep_type = ? AND tasks.status != ?`,
		taskID, string(model.DepTypeBlocks), string(model.TaskStatusClosed))
	if err != nil {
		return nil, fmt.Errorf("list open blockers: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}
