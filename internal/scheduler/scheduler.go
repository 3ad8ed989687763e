// Package scheduler polls for due CronJob rows and fires them, generalizing
// the teacher's internal/daemon/scheduler.Scheduler (a single ticker loop
// over in-memory Schedule values keyed by cron expression only) to Gobby's
// persisted CronJob/CronRun pair, three schedule kinds (cron, interval,
// once), and three action kinds (shell, agent_spawn, pipeline_run).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gobby-dev/gobby/internal/cronutil"
	"github.com/gobby-dev/gobby/internal/model"
)

// Store is the subset of internal/storage.Store the scheduler polls and
// records runs against.
type Store interface {
	ListDueCronJobs(ctx context.Context, now time.Time) ([]*model.CronJob, error)
	UpdateCronJob(ctx context.Context, j *model.CronJob) error
	CreateCronRun(ctx context.Context, r *model.CronRun) error
	UpdateCronRun(ctx context.Context, r *model.CronRun) error
	CountRunningCronRuns(ctx context.Context) (int, error)
}

// Config mirrors internal/config.SchedulerConfig.
type Config struct {
	PollInterval      time.Duration
	MaxConcurrentRuns int
	FailureThreshold  int
}

// Scheduler is the daemon's job-dispatch loop, started and stopped once
// per process by internal/daemon.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Scheduler. A zero PollInterval or MaxConcurrentRuns is
// replaced with a conservative default (5s, 4) so a daemon wiring this up
// before config.Load runs still behaves sanely in tests; a zero
// FailureThreshold is kept, and then no job is disabled for failing.
func New(store Store, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Start begins polling in a background goroutine. Calling Start while
// already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the poll loop to exit and blocks until it has, letting any
// in-flight fire() goroutines finish on their own (Stop does not cancel
// them — a scheduled agent spawn or pipeline run outlives the scheduler's
// own polling loop by design).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	running, err := s.store.CountRunningCronRuns(ctx)
	if err != nil {
		s.logger.Error("scheduler: count running cron runs failed", "error", err)
		return
	}
	budget := s.cfg.MaxConcurrentRuns - running
	if budget <= 0 {
		s.logger.Debug("scheduler: at concurrency cap, skipping tick", "running", running)
		return
	}

	due, err := s.store.ListDueCronJobs(ctx, now)
	if err != nil {
		s.logger.Error("scheduler: list due cron jobs failed", "error", err)
		return
	}

	for i, job := range due {
		if i >= budget {
			s.logger.Debug("scheduler: tick capped by concurrency budget", "skipped", len(due)-budget)
			break
		}
		go s.fire(ctx, job, now)
	}
}

// fire dispatches one due job, records its CronRun, and advances its
// scheduling state. It runs in its own goroutine so a slow or blocking
// action never delays the next tick's due-job scan.
func (s *Scheduler) fire(ctx context.Context, job *model.CronJob, now time.Time) {
	log := s.logger.With("cron_job_id", job.ID, "name", job.Name, "action_type", job.ActionType)

	started := time.Now()
	run := &model.CronRun{
		ID:          model.NewCronRunID(),
		CronJobID:   job.ID,
		TriggeredAt: now,
		StartedAt:   &started,
		Status:      "running",
	}
	if err := s.store.CreateCronRun(ctx, run); err != nil {
		log.Error("scheduler: create cron run failed", "error", err)
		return
	}

	agentRunID, pipelineExecID, output, dispatchErr := s.dispatcher.Dispatch(ctx, job)

	completed := time.Now()
	run.CompletedAt = &completed
	run.AgentRunID = agentRunID
	run.PipelineExecutionID = pipelineExecID
	run.Output = output
	if dispatchErr != nil {
		run.Status = "failed"
		run.Error = dispatchErr.Error()
		log.Error("scheduler: job dispatch failed", "error", dispatchErr)
	} else {
		run.Status = "succeeded"
	}
	if err := s.store.UpdateCronRun(ctx, run); err != nil {
		log.Error("scheduler: update cron run failed", "error", err)
	}

	s.advance(ctx, job, now, dispatchErr)
}

// advance recomputes a job's scheduling state after a firing: its
// consecutive-failure count, last status, and next_run_at, disabling the
// job once a one-shot fires or once it crosses FailureThreshold.
func (s *Scheduler) advance(ctx context.Context, job *model.CronJob, firedAt time.Time, dispatchErr error) {
	log := s.logger.With("cron_job_id", job.ID)

	if dispatchErr != nil {
		job.ConsecutiveFailures++
		job.LastStatus = "failed"
		if s.cfg.FailureThreshold > 0 && job.ConsecutiveFailures >= s.cfg.FailureThreshold {
			job.Enabled = false
			log.Warn("scheduler: disabling cron job after consecutive failures", "failures", job.ConsecutiveFailures)
		}
	} else {
		job.ConsecutiveFailures = 0
		job.LastStatus = "succeeded"
	}
	job.LastRunAt = &firedAt

	switch {
	case job.ScheduleType == model.ScheduleTypeOnce:
		job.Enabled = false
		job.NextRunAt = nil
	case job.Enabled:
		next, err := cronutil.ComputeNextRun(job, firedAt)
		if err != nil {
			log.Error("scheduler: compute next run failed, disabling job", "error", err)
			job.Enabled = false
			job.NextRunAt = nil
		} else {
			job.NextRunAt = next
		}
	}

	if err := s.store.UpdateCronJob(ctx, job); err != nil {
		log.Error("scheduler: update cron job failed", "error", err)
	}
}
