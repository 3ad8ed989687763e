// Package task implements thin CRUD over the Task entity plus its three
// non-trivial invariants: multi-shape reference resolution, close-time
// validation, and dependency-cycle detection.
package task

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
	"github.com/google/uuid"
)

// Store is the subset of internal/storage.Store the manager needs.
type Store interface {
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetTaskBySeqNum(ctx context.Context, projectID string, seqNum int) (*model.Task, error)
	ListChildTasks(ctx context.Context, projectID, parentID string) ([]*model.Task, error)
	ListTaskChildrenByID(ctx context.Context, taskID string) ([]*model.Task, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]*model.Task, error)
	UpdateTask(ctx context.Context, t *model.Task) error
	CreateTaskDependency(ctx context.Context, d *model.TaskDependency) error
	ListDependenciesFrom(ctx context.Context, taskID string) ([]*model.TaskDependency, error)
	ListOpenBlockers(ctx context.Context, taskID string) ([]*model.Task, error)
}

// GitStatusChecker reports whether a repository has uncommitted changes to
// tracked files, consulted by CloseTask's no_commit_needed override check.
type GitStatusChecker interface {
	HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error)
}

// Manager wraps Store with the Task invariants.
type Manager struct {
	store Store
	git   GitStatusChecker
}

// New constructs a Manager over store. git may be nil if the caller never
// invokes CloseTask with NoCommitNeeded set (tests, dry-run evaluation).
func New(store Store, git GitStatusChecker) *Manager {
	return &Manager{store: store, git: git}
}

// Create allocates a seq_num and inserts t.
func (m *Manager) Create(ctx context.Context, t *model.Task) error {
	return m.store.CreateTask(ctx, t)
}

// Get fetches a task by id.
func (m *Manager) Get(ctx context.Context, id string) (*model.Task, error) {
	return m.store.GetTask(ctx, id)
}

// Update persists t's mutable fields.
func (m *Manager) Update(ctx context.Context, t *model.Task) error {
	return m.store.UpdateTask(ctx, t)
}

// ListByProject returns every task in a project.
func (m *Manager) ListByProject(ctx context.Context, projectID string) ([]*model.Task, error) {
	return m.store.ListTasksByProject(ctx, projectID)
}

// ResolveReference accepts three shapes: "#N" (seq_num), a dotted path
// like "1.2.3" (walked by parent chain, each segment a seq_num among its
// parent's direct children), or a bare UUID. Any other form, including a
// "gt-" prefixed id, fails with a NotFoundError.
func (m *Manager) ResolveReference(ctx context.Context, ref, projectID string) (*model.Task, error) {
	switch {
	case strings.HasPrefix(ref, "#"):
		return m.resolveSeqNum(ctx, ref[1:], projectID)
	case isDottedPath(ref):
		return m.resolveDottedPath(ctx, ref, projectID)
	case isUUID(ref):
		return m.store.GetTask(ctx, ref)
	default:
		return nil, gobbyerrors.NewNotFoundError("task", ref)
	}
}

func (m *Manager) resolveSeqNum(ctx context.Context, numStr, projectID string) (*model.Task, error) {
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return nil, gobbyerrors.NewNotFoundError("task", "#"+numStr)
	}
	return m.store.GetTaskBySeqNum(ctx, projectID, n)
}

func isDottedPath(ref string) bool {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}

func (m *Manager) resolveDottedPath(ctx context.Context, ref, projectID string) (*model.Task, error) {
	parts := strings.Split(ref, ".")
	var parentID string
	var current *model.Task

	for _, part := range parts {
		seqNum, err := strconv.Atoi(part)
		if err != nil {
			return nil, gobbyerrors.NewNotFoundError("task", ref)
		}

		children, err := m.store.ListChildTasks(ctx, projectID, parentID)
		if err != nil {
			return nil, err
		}

		var match *model.Task
		for _, c := range children {
			if c.SeqNum == seqNum {
				match = c
				break
			}
		}
		if match == nil {
			return nil, gobbyerrors.NewNotFoundError("task", ref)
		}
		current = match
		parentID = match.ID
	}
	return current, nil
}

func isUUID(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

// AddDependency inserts a directed edge and verifies the resulting graph
// stays acyclic, refusing the edge (not the existing graph) if it would
// introduce a cycle.
func (m *Manager) AddDependency(ctx context.Context, d *model.TaskDependency) error {
	if d.ID == "" {
		d.ID = model.NewID()
	}
	if cycles, err := m.wouldCycle(ctx, d); err != nil {
		return err
	} else if cycles {
		return gobbyerrors.NewValidationError("dependency", "would introduce a cycle", "remove the conflicting dependency first")
	}
	return m.store.CreateTaskDependency(ctx, d)
}

// wouldCycle reports whether adding d would make to_task_id reachable
// back to from_task_id through existing "blocks"/"relates_to" edges.
func (m *Manager) wouldCycle(ctx context.Context, d *model.TaskDependency) (bool, error) {
	visited := map[string]bool{}
	var walk func(taskID string) (bool, error)
	walk = func(taskID string) (bool, error) {
		if taskID == d.FromTaskID {
			return true, nil
		}
		if visited[taskID] {
			return false, nil
		}
		visited[taskID] = true

		deps, err := m.store.ListDependenciesFrom(ctx, taskID)
		if err != nil {
			return false, err
		}
		for _, dep := range deps {
			hit, err := walk(dep.ToTaskID)
			if err != nil {
				return false, err
			}
			if hit {
				return true, nil
			}
		}
		return false, nil
	}
	return walk(d.ToTaskID)
}

// CheckCycles returns one entry per task involved in a dependency cycle,
// covering the whole project's dependency graph — a periodic validator
// job, not only the path AddDependency already blocks at insert time.
func (m *Manager) CheckCycles(ctx context.Context, projectID string) ([]string, error) {
	tasks, err := m.store.ListTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var cyclic []string
	for _, t := range tasks {
		onStack := map[string]bool{}
		visited := map[string]bool{}
		if m.hasCycleFrom(ctx, t.ID, onStack, visited) {
			cyclic = append(cyclic, t.ID)
		}
	}
	return cyclic, nil
}

func (m *Manager) hasCycleFrom(ctx context.Context, taskID string, onStack, visited map[string]bool) bool {
	if onStack[taskID] {
		return true
	}
	if visited[taskID] {
		return false
	}
	visited[taskID] = true
	onStack[taskID] = true
	defer delete(onStack, taskID)

	deps, err := m.store.ListDependenciesFrom(ctx, taskID)
	if err != nil {
		return false
	}
	for _, dep := range deps {
		if m.hasCycleFrom(ctx, dep.ToTaskID, onStack, visited) {
			return true
		}
	}
	return false
}

// CloseOptions configures CloseTask's commit-linkage override.
type CloseOptions struct {
	NoCommitNeeded bool
	RepoPath       string
}

// CloseTask validates and, if valid, transitions t to closed. Fails with
// validation_failed when t has unclosed children, or has no linked
// commits and opts.NoCommitNeeded is false. Fails with uncommitted_changes
// — a hard block regardless of the override — when NoCommitNeeded is true
// but the repository has uncommitted tracked changes.
func (m *Manager) CloseTask(ctx context.Context, t *model.Task, opts CloseOptions) error {
	children, err := m.store.ListTaskChildrenByID(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status != model.TaskStatusClosed {
			return gobbyerrors.NewValidationError("task", fmt.Sprintf("child task %s is not closed", c.ID), "close all child tasks first")
		}
	}

	if len(t.Commits) == 0 && !opts.NoCommitNeeded {
		return gobbyerrors.NewValidationError("task", "no linked commits", "link a commit or set no_commit_needed=true")
	}

	if opts.NoCommitNeeded && m.git != nil && opts.RepoPath != "" {
		dirty, err := m.git.HasUncommittedChanges(ctx, opts.RepoPath)
		if err != nil {
			return err
		}
		if dirty {
			return gobbyerrors.NewUncommittedChangesError(t.ID, opts.RepoPath)
		}
	}

	t.Status = model.TaskStatusClosed
	return m.store.UpdateTask(ctx, t)
}
