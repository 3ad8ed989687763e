// Package workflowstate wraps internal/storage's WorkflowState primitives
// behind a narrow interface so the workflow engine and action executor
// depend on a seam rather than a concrete *storage.Store.
package workflowstate

import (
	"context"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/storage"
)

// Store is the subset of internal/storage.Store the manager needs.
type Store interface {
	GetWorkflowState(ctx context.Context, sessionID, workflowName string) (*model.WorkflowState, error)
	ListWorkflowStatesForSession(ctx context.Context, sessionID string) ([]*model.WorkflowState, error)
	PutWorkflowState(ctx context.Context, ws *model.WorkflowState) error
	DeleteWorkflowState(ctx context.Context, sessionID, workflowName string) error
	UpdateOrchestrationLists(ctx context.Context, sessionID, workflowName string, upd storage.OrchestrationListUpdate) (*model.WorkflowState, error)
	CheckAndReserveSlots(ctx context.Context, sessionID, workflowName string, maxConcurrent, requested int) (int, error)
	ReleaseReservedSlots(ctx context.Context, sessionID, workflowName string, n int) error
}

// Manager is the WorkflowStateManager of spec.md §4.4.
type Manager struct {
	store Store
}

// New constructs a Manager over store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Get fetches the state for one (sessionID, workflowName) instance.
func (m *Manager) Get(ctx context.Context, sessionID, workflowName string) (*model.WorkflowState, error) {
	return m.store.GetWorkflowState(ctx, sessionID, workflowName)
}

// ListForSession returns every workflow instance attached to a session.
func (m *Manager) ListForSession(ctx context.Context, sessionID string) ([]*model.WorkflowState, error) {
	return m.store.ListWorkflowStatesForSession(ctx, sessionID)
}

// Put inserts or fully replaces a workflow state row.
func (m *Manager) Put(ctx context.Context, ws *model.WorkflowState) error {
	return m.store.PutWorkflowState(ctx, ws)
}

// Delete removes a workflow instance, used on completion or explicit stop.
func (m *Manager) Delete(ctx context.Context, sessionID, workflowName string) error {
	return m.store.DeleteWorkflowState(ctx, sessionID, workflowName)
}

// UpdateOrchestrationLists mutates the spawned/completed/failed agent lists
// atomically. See storage.OrchestrationListUpdate for field semantics.
func (m *Manager) UpdateOrchestrationLists(ctx context.Context, sessionID, workflowName string, upd storage.OrchestrationListUpdate) (*model.WorkflowState, error) {
	return m.store.UpdateOrchestrationLists(ctx, sessionID, workflowName, upd)
}

// ReserveSlots reserves up to requested concurrency slots, returning the
// number actually reserved under the maxConcurrent ceiling.
func (m *Manager) ReserveSlots(ctx context.Context, sessionID, workflowName string, maxConcurrent, requested int) (int, error) {
	return m.store.CheckAndReserveSlots(ctx, sessionID, workflowName, maxConcurrent, requested)
}

// ReleaseSlots gives back n previously reserved slots.
func (m *Manager) ReleaseSlots(ctx context.Context, sessionID, workflowName string, n int) error {
	return m.store.ReleaseReservedSlots(ctx, sessionID, workflowName, n)
}
