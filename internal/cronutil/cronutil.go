// Package cronutil computes a CronJob's next run time from whichever of
// its three schedule kinds is active, generalizing the teacher's
// hand-rolled cron parser (internal/daemon/scheduler/cron.go's
// CronExpr/ParseCron/Next) into a thin wrapper over robfig/cron/v3, and
// extending it to cover fixed-interval and one-shot schedules alongside
// cron expressions.
package cronutil

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gobby-dev/gobby/internal/model"
)

// parser accepts standard 5-field cron expressions plus the @hourly/@daily/
// @weekly/@monthly/@yearly/@every descriptors, matching what the teacher's
// ParseCron supported.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ComputeNextRun returns job's next fire time strictly after from, or nil
// if the job has no future run (a one-shot job whose RunAt has already
// passed). Cron expressions are evaluated in job's Timezone (UTC when
// unset) and the result is in that zone; an invalid Timezone is an error.
// Interval and one-shot results keep the location of from and RunAt.
func ComputeNextRun(job *model.CronJob, from time.Time) (*time.Time, error) {
	switch job.ScheduleType {
	case model.ScheduleTypeCron:
		return nextCron(job, from)
	case model.ScheduleTypeInterval:
		return nextInterval(job, from)
	case model.ScheduleTypeOnce:
		return nextOnce(job, from)
	default:
		return nil, fmt.Errorf("cronutil: unknown schedule type %q", job.ScheduleType)
	}
}

func nextCron(job *model.CronJob, from time.Time) (*time.Time, error) {
	if job.CronExpr == "" {
		return nil, fmt.Errorf("cronutil: cron job %q missing cron_expr", job.ID)
	}
	loc, err := location(job.Timezone)
	if err != nil {
		return nil, err
	}
	sched, err := parser.Parse(job.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("cronutil: invalid cron expression %q: %w", job.CronExpr, err)
	}
	next := sched.Next(from.In(loc))
	return &next, nil
}

func nextInterval(job *model.CronJob, from time.Time) (*time.Time, error) {
	if job.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("cronutil: cron job %q has non-positive interval_seconds", job.ID)
	}
	next := from.Add(time.Duration(job.IntervalSeconds) * time.Second)
	return &next, nil
}

func nextOnce(job *model.CronJob, from time.Time) (*time.Time, error) {
	if job.RunAt == nil {
		return nil, fmt.Errorf("cronutil: cron job %q has schedule_type once but no run_at", job.ID)
	}
	if job.RunAt.After(from) {
		t := *job.RunAt
		return &t, nil
	}
	// Already due or past; a one-shot job fires at most once.
	return nil, nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("cronutil: invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
