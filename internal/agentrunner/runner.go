package agentrunner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/registry"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// DefaultMaxDepth matches config.MaxAgentDepth's default: an orchestrator
// may spawn children up to 4 levels deep before PrepareRun refuses.
const DefaultMaxDepth = 4

// Sessions is the subset of internal/session.Manager the runner needs.
type Sessions interface {
	Register(ctx context.Context, sess *model.Session) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	Update(ctx context.Context, sess *model.Session) error
}

// Slots is the subset of internal/workflowstate.Manager the runner uses to
// enforce an orchestrator's max_concurrent on spawned children.
type Slots interface {
	ReserveSlots(ctx context.Context, sessionID, workflowName string, maxConcurrent, requested int) (int, error)
	ReleaseSlots(ctx context.Context, sessionID, workflowName string, n int) error
}

// Isolation prepares a worktree or clone checkout for a child agent.
type Isolation interface {
	Prepare(ctx context.Context, kind Kind, repoPath, baseBranch, runID string) (*IsolationResult, error)
}

// Kind is the isolation strategy requested for a spawned agent.
type Kind string

const (
	IsolationNone     Kind = ""
	IsolationWorktree Kind = "worktree"
	IsolationClone    Kind = "clone"
)

// IsolationResult is what Prepare hands back for the spawned agent to use
// as its working directory.
type IsolationResult struct {
	WorktreeID string
	BranchName string
	Path       string
}

// InProcessExecutor runs the in_process agent mode: an async ReAct loop
// within the daemon, driven by pkg/agent.Agent behind this narrower seam.
type InProcessExecutor interface {
	Run(ctx context.Context, systemPrompt, userPrompt string) error
}

// Strategy starts a spawned agent's process for one of the out-of-process
// modes (terminal/embedded/headless) and returns the OS pid.
type Strategy interface {
	Start(ctx context.Context, run *PreparedRun) (pid int, err error)
}

// PrepareRunRequest is the input to PrepareRun, mirroring spec.md §4.8's
// prepare_run(agent, task, workflow, parent_session_id, mode, provider,
// terminal, isolation) call.
type PrepareRunRequest struct {
	Agent           string
	Task            string
	Prompt          string
	Workflow        string
	ParentSessionID string
	Mode            model.AgentMode
	Provider        string
	Terminal        string
	Isolation       Kind
	RepoPath        string
	BaseBranch      string
	MaxConcurrent   int
}

// PreparedRun is the result of PrepareRun: a child Session row has already
// been created and any isolation checkout already staged, ready for Spawn
// to start the actual process.
type PreparedRun struct {
	RunID      string
	Session    *model.Session
	Req        PrepareRunRequest
	Isolation  *IsolationResult
	slotsOwner string // non-empty workflow name if a slot was reserved, for release on failure
}

// Runner implements the AgentRunner of spec.md §4.8.
type Runner struct {
	Sessions  Sessions
	Slots     Slots
	Registry  *registry.Registry
	Isolation Isolation
	InProcess InProcessExecutor
	Terminal  Strategy
	Embedded  Strategy
	Headless  Strategy
	MaxDepth  int
	Logger    *slog.Logger
}

// New constructs a Runner. Isolation/InProcess/Terminal/Embedded/Headless
// may be left nil; the corresponding mode then fails with a clear error
// rather than panicking, so a daemon can wire in only the modes it
// supports for a given platform. reg may be nil, in which case a fresh
// registry.Registry is created; callers that need to share one registry
// across components (e.g. the daemon's periodic cleanup tick) should pass
// their own.
func New(sessions Sessions, slots Slots, reg *registry.Registry, logger *slog.Logger) *Runner {
	if reg == nil {
		reg = registry.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Sessions: sessions,
		Slots:    slots,
		Registry: reg,
		MaxDepth: DefaultMaxDepth,
		Logger:   logger,
	}
}

// CanSpawn reports whether parentSessionID may spawn one more level of
// child agent, per spec.md §4.8's public dry-run check.
func (r *Runner) CanSpawn(ctx context.Context, parentSessionID string) (bool, string, *model.Session) {
	if parentSessionID == "" {
		return true, "", nil
	}
	parent, err := r.Sessions.Get(ctx, parentSessionID)
	if err != nil {
		return false, fmt.Sprintf("parent session lookup failed: %v", err), nil
	}
	if parent == nil {
		return false, "parent session not found", nil
	}
	if parent.AgentDepth+1 > r.maxDepth() {
		return false, fmt.Sprintf("max agent depth %d exceeded", r.maxDepth()), parent
	}
	return true, "", parent
}

func (r *Runner) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

// PrepareRun enforces depth/slot limits, creates the child Session row,
// and stages isolation, per spec.md §4.8 steps 1-2. On any failure after a
// slot has been reserved, the slot is released before returning.
func (r *Runner) PrepareRun(ctx context.Context, req PrepareRunRequest) (*PreparedRun, error) {
	ok, reason, parent := r.CanSpawn(ctx, req.ParentSessionID)
	if !ok {
		return nil, gobbyerrors.NewValidationError("parent_session_id", reason, "reduce agent nesting or wait for a slot to free up")
	}

	run := &PreparedRun{RunID: model.NewRunID(), Req: req}

	if parent != nil && req.Workflow != "" && r.Slots != nil && req.MaxConcurrent > 0 {
		reserved, err := r.Slots.ReserveSlots(ctx, parent.ID, req.Workflow, req.MaxConcurrent, 1)
		if err != nil {
			return nil, fmt.Errorf("reserving orchestration slot: %w", err)
		}
		if reserved < 1 {
			return nil, gobbyerrors.NewConflictError("workflow_slots", "no concurrency slots available")
		}
		run.slotsOwner = req.Workflow
	}

	releaseSlot := func() {
		if run.slotsOwner != "" && parent != nil && r.Slots != nil {
			_ = r.Slots.ReleaseSlots(ctx, parent.ID, run.slotsOwner, 1)
		}
	}

	depth := 0
	projectID, machineID, source := "", "", "agent"
	if parent != nil {
		depth = parent.AgentDepth + 1
		projectID, machineID, source = parent.ProjectID, parent.MachineID, parent.Source
	}

	child := &model.Session{
		ID:              model.NewID(),
		ExternalID:      run.RunID,
		MachineID:       machineID,
		Source:          source,
		ProjectID:       projectID,
		ParentSessionID: req.ParentSessionID,
		AgentDepth:      depth,
		Status:          model.SessionStatusActive,
		Title:           req.Task,
	}
	sess, err := r.Sessions.Register(ctx, child)
	if err != nil {
		releaseSlot()
		return nil, fmt.Errorf("registering child session: %w", err)
	}
	run.Session = sess

	if req.Isolation != IsolationNone {
		if r.Isolation == nil {
			releaseSlot()
			return nil, fmt.Errorf("isolation %q requested but no isolation strategy configured", req.Isolation)
		}
		iso, err := r.Isolation.Prepare(ctx, req.Isolation, req.RepoPath, req.BaseBranch, run.RunID)
		if err != nil {
			releaseSlot()
			return nil, fmt.Errorf("preparing %s isolation: %w", req.Isolation, err)
		}
		run.Isolation = iso
	}

	return run, nil
}

// Spawn starts run's process (or in-process task) per its mode, registers
// a RunningAgent, and returns the spec.md §4.8 step-3 result fields.
func (r *Runner) Spawn(ctx context.Context, run *PreparedRun) (runID, sessionID string, pid int, worktreeID, branchName string, err error) {
	agent := &model.RunningAgent{
		RunID:           run.RunID,
		SessionID:       run.Session.ID,
		ParentSessionID: run.Req.ParentSessionID,
		Mode:            run.Req.Mode,
		StartedAt:       time.Now(),
		Provider:        run.Req.Provider,
		TerminalType:    run.Req.Terminal,
		WorkflowName:    run.Req.Workflow,
		Task:            run.Req.Task,
	}
	if run.Isolation != nil {
		agent.WorktreeID = run.Isolation.WorktreeID
		worktreeID = run.Isolation.WorktreeID
		branchName = run.Isolation.BranchName
	}

	switch run.Req.Mode {
	case model.AgentModeInProcess:
		if r.InProcess == nil {
			return "", "", 0, "", "", fmt.Errorf("in_process mode requested but no executor configured")
		}
		r.Registry.Add(agent)
		go r.runInProcess(run)
		return run.RunID, run.Session.ID, 0, worktreeID, branchName, nil

	case model.AgentModeTerminal:
		pid, err = r.start(ctx, r.Terminal, "terminal", run)
	case model.AgentModeEmbedded:
		pid, err = r.start(ctx, r.Embedded, "embedded", run)
	case model.AgentModeHeadless:
		pid, err = r.start(ctx, r.Headless, "headless", run)
	default:
		return "", "", 0, "", "", fmt.Errorf("unknown agent mode %q", run.Req.Mode)
	}
	if err != nil {
		r.releaseOnFailure(ctx, run)
		return "", "", 0, "", "", err
	}

	agent.PID = pid
	r.Registry.Add(agent)
	return run.RunID, run.Session.ID, pid, worktreeID, branchName, nil
}

func (r *Runner) start(ctx context.Context, strat Strategy, name string, run *PreparedRun) (int, error) {
	if strat == nil {
		return 0, fmt.Errorf("%s mode requested but no strategy configured", name)
	}
	return strat.Start(ctx, run)
}

func (r *Runner) runInProcess(run *PreparedRun) {
	ctx := context.Background()
	systemPrompt := fmt.Sprintf("You are agent %q working on task: %s", run.Req.Agent, run.Req.Task)
	err := r.InProcess.Run(ctx, systemPrompt, run.Req.Prompt)
	status := "completed"
	if err != nil {
		status = "failed"
		r.Logger.Error("in_process agent run failed", "run_id", run.RunID, "error", err)
	}
	r.releaseOnFailure(ctx, run)
	r.Registry.Remove(run.RunID, status)
}

// Remove finalizes runID with the given terminal status, releasing any
// orchestration slot it held. Safe to call more than once; subsequent
// calls are no-ops once the run is no longer tracked.
func (r *Runner) Remove(ctx context.Context, run *PreparedRun, status string) {
	if _, ok := r.Registry.Remove(run.RunID, status); ok {
		r.releaseOnFailure(ctx, run)
	}
}

func (r *Runner) releaseOnFailure(ctx context.Context, run *PreparedRun) {
	if run.slotsOwner == "" || r.Slots == nil || run.Req.ParentSessionID == "" {
		return
	}
	_ = r.Slots.ReleaseSlots(ctx, run.Req.ParentSessionID, run.slotsOwner, 1)
}

// spawnAction adapts Runner to action.AgentSpawner, the seam spawn_agent's
// handler calls through.
type spawnAction struct {
	runner *Runner
}

// AsActionSpawner wraps r to satisfy action.AgentSpawner for wiring into
// action.ActionContext.Agents.
func AsActionSpawner(r *Runner) action.AgentSpawner {
	return &spawnAction{runner: r}
}

func (s *spawnAction) Spawn(ctx context.Context, req action.SpawnRequest) (string, error) {
	mode := model.AgentMode(req.Mode)
	if mode == "" {
		mode = model.AgentModeHeadless
	}
	prep, err := s.runner.PrepareRun(ctx, PrepareRunRequest{
		Agent:           req.Agent,
		Task:            req.Task,
		Prompt:          req.Prompt,
		Workflow:        req.Workflow,
		ParentSessionID: req.SessionID,
		Mode:            mode,
		Isolation:       Kind(req.Isolation),
	})
	if err != nil {
		return "", err
	}
	runID, _, _, _, _, err := s.runner.Spawn(ctx, prep)
	return runID, err
}
