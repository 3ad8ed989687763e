package cronutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
)

func TestComputeNextRunCronExpression(t *testing.T) {
	from := time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC)
	job := &model.CronJob{ID: "cj-1", ScheduleType: model.ScheduleTypeCron, CronExpr: "0 * * * *"}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, time.Date(2026, 7, 30, 11, 0, 0, 0, time.UTC), next.UTC())
}

func TestComputeNextRunCronDescriptor(t *testing.T) {
	from := time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC)
	job := &model.CronJob{ID: "cj-1", ScheduleType: model.ScheduleTypeCron, CronExpr: "@daily"}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), next.UTC())
}

func TestComputeNextRunCronRespectsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	job := &model.CronJob{ID: "cj-1", ScheduleType: model.ScheduleTypeCron, CronExpr: "0 9 * * *", Timezone: "America/New_York"}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.Equal(t, 9, next.In(loc).Hour())
}

func TestComputeNextRunCronInvalidExpression(t *testing.T) {
	job := &model.CronJob{ID: "cj-1", ScheduleType: model.ScheduleTypeCron, CronExpr: "not a cron expr"}
	_, err := ComputeNextRun(job, time.Now())
	require.Error(t, err)
}

func TestComputeNextRunInterval(t *testing.T) {
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	job := &model.CronJob{ID: "cj-2", ScheduleType: model.ScheduleTypeInterval, IntervalSeconds: 90}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.Equal(t, from.Add(90*time.Second), *next)
}

func TestComputeNextRunIntervalRejectsNonPositive(t *testing.T) {
	job := &model.CronJob{ID: "cj-2", ScheduleType: model.ScheduleTypeInterval, IntervalSeconds: 0}
	_, err := ComputeNextRun(job, time.Now())
	require.Error(t, err)
}

func TestComputeNextRunOnceFuture(t *testing.T) {
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	runAt := from.Add(time.Hour)
	job := &model.CronJob{ID: "cj-3", ScheduleType: model.ScheduleTypeOnce, RunAt: &runAt}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.Equal(t, runAt, *next)
}

func TestComputeNextRunOncePastReturnsNil(t *testing.T) {
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	runAt := from.Add(-time.Hour)
	job := &model.CronJob{ID: "cj-3", ScheduleType: model.ScheduleTypeOnce, RunAt: &runAt}

	next, err := ComputeNextRun(job, from)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestComputeNextRunUnknownScheduleType(t *testing.T) {
	job := &model.CronJob{ID: "cj-4", ScheduleType: "bogus"}
	_, err := ComputeNextRun(job, time.Now())
	require.Error(t, err)
}
