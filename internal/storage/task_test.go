package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
)

func seedProject(t *testing.T, ctx context.Context, s interface {
	CreateProject(context.Context, *model.Project) error
}) *model.Project {
	t.Helper()
	p := &model.Project{ID: model.NewID(), Name: "gobby", RepoPath: "/repos/" + model.NewID()}
	require.NoError(t, s.CreateProject(ctx, p))
	return p
}

func TestCreateTaskAllocatesSeqNum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	t1 := &model.Task{ID: model.NewID(), ProjectID: p.ID, Title: "Parent", Status: model.TaskStatusOpen, Priority: "medium", TaskType: "task"}
	require.NoError(t, s.CreateTask(ctx, t1))
	require.Equal(t, 1, t1.SeqNum)

	t2 := &model.Task{ID: model.NewID(), ProjectID: p.ID, Title: "Child", Status: model.TaskStatusOpen, Priority: "medium", TaskType: "task", ParentTaskID: t1.ID}
	require.NoError(t, s.CreateTask(ctx, t2))
	require.Equal(t, 2, t2.SeqNum)

	got, err := s.GetTaskBySeqNum(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, t2.ID, got.ID)
	require.Equal(t, t1.ID, got.ParentTaskID)
}

func TestListOpenBlockers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	blocker := &model.Task{ID: model.NewID(), ProjectID: p.ID, Title: "Blocker", Status: model.TaskStatusOpen, Priority: "medium", TaskType: "task"}
	require.NoError(t, s.CreateTask(ctx, blocker))

	blocked := &model.Task{ID: model.NewID(), ProjectID: p.ID, Title: "Blocked", Status: model.TaskStatusOpen, Priority: "medium", TaskType: "task"}
	require.NoError(t, s.CreateTask(ctx, blocked))

	require.NoError(t, s.CreateTaskDependency(ctx, &model.TaskDependency{
		ID: model.NewID(), FromTaskID: blocked.ID, ToTaskID: blocker.ID, DepType: model.DepTypeBlocks,
	}))

	open, err := s.ListOpenBlockers(ctx, blocked.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, blocker.ID, open[0].ID)

	blocker.Status = model.TaskStatusClosed
	require.NoError(t, s.UpdateTask(ctx, blocker))

	open, err = s.ListOpenBlockers(ctx, blocked.ID)
	require.NoError(t, err)
	require.Empty(t, open)
}
