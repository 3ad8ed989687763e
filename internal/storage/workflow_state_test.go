package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/storage"
)

func seedWorkflowState(t *testing.T, ctx context.Context, s *storage.Store, sessionID string) {
	t.Helper()
	ws := &model.WorkflowState{
		SessionID:    sessionID,
		WorkflowName: "orchestrator",
		Step:         "dispatch",
		Variables:    map[string]any{},
	}
	require.NoError(t, s.PutWorkflowState(ctx, ws))
}

func TestCheckAndReserveSlotsRespectsMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflowState(t, ctx, s, "sess-1")

	reserved, err := s.CheckAndReserveSlots(ctx, "sess-1", "orchestrator", 3, 5)
	require.NoError(t, err)
	require.Equal(t, 3, reserved, "should clamp to maxConcurrent")

	reserved, err = s.CheckAndReserveSlots(ctx, "sess-1", "orchestrator", 3, 1)
	require.NoError(t, err)
	require.Equal(t, 0, reserved, "no slots left once all three are reserved")
}

func TestReleaseReservedSlotsFloorsAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflowState(t, ctx, s, "sess-1")

	_, err := s.CheckAndReserveSlots(ctx, "sess-1", "orchestrator", 3, 2)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseReservedSlots(ctx, "sess-1", "orchestrator", 10))

	ws, err := s.GetWorkflowState(ctx, "sess-1", "orchestrator")
	require.NoError(t, err)
	require.Equal(t, 0, int(ws.Variables[model.VarReservedSlots].(float64)))
}

func TestUpdateOrchestrationListsReplaceTakesPrecedence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflowState(t, ctx, s, "sess-1")

	_, err := s.UpdateOrchestrationLists(ctx, "sess-1", "orchestrator", storage.OrchestrationListUpdate{
		AppendToSpawned: []string{"run-1", "run-2"},
	})
	require.NoError(t, err)

	ws, err := s.UpdateOrchestrationLists(ctx, "sess-1", "orchestrator", storage.OrchestrationListUpdate{
		ReplaceSpawned:    []string{"run-3"},
		HasReplaceSpawned: true,
		RemoveFromSpawned: []string{"run-1"},
	})
	require.NoError(t, err)

	spawned := ws.Variables[model.VarSpawnedAgents].([]string)
	require.Equal(t, []string{"run-3"}, spawned)
}

func TestUpdateOrchestrationListsPreservesUnrelatedVariables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflowState(t, ctx, s, "sess-1")

	ws, err := s.GetWorkflowState(ctx, "sess-1", "orchestrator")
	require.NoError(t, err)
	ws.Variables["current_task_id"] = "task-42"
	require.NoError(t, s.PutWorkflowState(ctx, ws))

	ws, err = s.UpdateOrchestrationLists(ctx, "sess-1", "orchestrator", storage.OrchestrationListUpdate{
		AppendToCompleted: []string{"run-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "task-42", ws.Variables["current_task_id"])
}
