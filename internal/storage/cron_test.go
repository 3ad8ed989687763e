package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

func TestCreateAndGetCronJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	j := &model.CronJob{
		ID: model.NewCronJobID(), ProjectID: p.ID, Name: "nightly-sync",
		ScheduleType: model.ScheduleTypeCron, CronExpr: "0 2 * * *", Timezone: "UTC",
		ActionType: model.CronActionShell, ActionConfig: `{"command":"echo hi"}`, Enabled: true,
	}
	require.NoError(t, s.CreateCronJob(ctx, j))

	got, err := s.GetCronJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, j.Name, got.Name)
	require.Equal(t, j.CronExpr, got.CronExpr)
	require.True(t, got.Enabled)
}

func TestGetCronJobNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCronJob(context.Background(), "missing")
	require.True(t, gobbyerrors.IsNotFound(err))
}

func TestListDueCronJobsOnlyReturnsEnabledAndPastDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "due", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true, NextRunAt: &past}
	notDue := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "not-due", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true, NextRunAt: &future}
	disabled := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "disabled", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: false, NextRunAt: &past}

	for _, j := range []*model.CronJob{due, notDue, disabled} {
		require.NoError(t, s.CreateCronJob(ctx, j))
	}

	jobs, err := s.ListDueCronJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, due.ID, jobs[0].ID)
}

func TestUpdateCronJobPersistsScheduleAndState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	j := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "job", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true}
	require.NoError(t, s.CreateCronJob(ctx, j))

	j.Name = "renamed"
	j.Enabled = false
	j.LastStatus = "failed"
	j.ConsecutiveFailures = 3
	require.NoError(t, s.UpdateCronJob(ctx, j))

	got, err := s.GetCronJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
	require.False(t, got.Enabled)
	require.Equal(t, "failed", got.LastStatus)
	require.Equal(t, 3, got.ConsecutiveFailures)
}

func TestUpdateCronJobNotFound(t *testing.T) {
	s := newTestStore(t)
	j := &model.CronJob{ID: "missing", Name: "x", ScheduleType: model.ScheduleTypeCron, ActionType: model.CronActionShell}
	err := s.UpdateCronJob(context.Background(), j)
	require.True(t, gobbyerrors.IsNotFound(err))
}

func TestDeleteCronJobRemovesJobAndRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	j := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "job", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true}
	require.NoError(t, s.CreateCronJob(ctx, j))
	require.NoError(t, s.CreateCronRun(ctx, &model.CronRun{ID: model.NewCronRunID(), CronJobID: j.ID, TriggeredAt: time.Now(), Status: "success"}))

	require.NoError(t, s.DeleteCronJob(ctx, j.ID))

	_, err := s.GetCronJob(ctx, j.ID)
	require.True(t, gobbyerrors.IsNotFound(err))

	runs, err := s.ListCronRunsByJob(ctx, j.ID)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestDeleteCronJobNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteCronJob(context.Background(), "missing")
	require.True(t, gobbyerrors.IsNotFound(err))
}

func TestCreateAndListCronRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	j := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "job", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true}
	require.NoError(t, s.CreateCronJob(ctx, j))

	r := &model.CronRun{ID: model.NewCronRunID(), CronJobID: j.ID, TriggeredAt: time.Now(), Status: "running"}
	require.NoError(t, s.CreateCronRun(ctx, r))

	now := time.Now()
	r.StartedAt = &now
	r.CompletedAt = &now
	r.Status = "success"
	r.Output = "ok"
	require.NoError(t, s.UpdateCronRun(ctx, r))

	runs, err := s.ListCronRunsByJob(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "success", runs[0].Status)
	require.Equal(t, "ok", runs[0].Output)
}

func TestCountRunningCronRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProject(t, ctx, s)

	j := &model.CronJob{ID: model.NewCronJobID(), ProjectID: p.ID, Name: "job", ScheduleType: model.ScheduleTypeCron,
		CronExpr: "* * * * *", ActionType: model.CronActionShell, ActionConfig: "{}", Enabled: true}
	require.NoError(t, s.CreateCronJob(ctx, j))
	require.NoError(t, s.CreateCronRun(ctx, &model.CronRun{ID: model.NewCronRunID(), CronJobID: j.ID, TriggeredAt: time.Now(), Status: "running"}))
	require.NoError(t, s.CreateCronRun(ctx, &model.CronRun{ID: model.NewCronRunID(), CronJobID: j.ID, TriggeredAt: time.Now(), Status: "success"}))

	n, err := s.CountRunningCronRuns(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
