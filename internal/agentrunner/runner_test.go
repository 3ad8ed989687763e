package agentrunner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/agentrunner"
	"github.com/gobby-dev/gobby/internal/model"
)

type fakeSessions struct {
	mu   sync.Mutex
	byID map[string]*model.Session
}

func newFakeSessions(seed ...*model.Session) *fakeSessions {
	f := &fakeSessions{byID: make(map[string]*model.Session)}
	for _, s := range seed {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeSessions) Register(ctx context.Context, sess *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeSessions) Update(ctx context.Context, sess *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sess.ID] = sess
	return nil
}

type fakeSlots struct {
	mu       sync.Mutex
	reserved map[string]int
	deny     bool
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{reserved: map[string]int{}}
}

func (f *fakeSlots) ReserveSlots(ctx context.Context, sessionID, workflowName string, maxConcurrent, requested int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return 0, nil
	}
	f.reserved[sessionID+"/"+workflowName] += requested
	return requested, nil
}

func (f *fakeSlots) ReleaseSlots(ctx context.Context, sessionID, workflowName string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved[sessionID+"/"+workflowName] -= n
	return nil
}

type fakeInProcess struct {
	fail bool
	done chan struct{}
}

func (f *fakeInProcess) Run(ctx context.Context, systemPrompt, userPrompt string) error {
	defer close(f.done)
	if f.fail {
		return context.DeadlineExceeded
	}
	return nil
}

type fakeStrategy struct {
	pid int
	err error
}

func (f *fakeStrategy) Start(ctx context.Context, run *agentrunner.PreparedRun) (int, error) {
	return f.pid, f.err
}

func TestCanSpawnAllowsWithinDepthAndRejectsBeyond(t *testing.T) {
	parent := &model.Session{ID: "parent", AgentDepth: 2}
	sessions := newFakeSessions(parent)
	r := agentrunner.New(sessions, nil, nil, nil)
	r.MaxDepth = 4

	ok, reason, got := r.CanSpawn(context.Background(), "parent")
	require.True(t, ok)
	require.Empty(t, reason)
	require.Equal(t, parent, got)

	parent.AgentDepth = 4
	ok, reason, _ = r.CanSpawn(context.Background(), "parent")
	require.False(t, ok)
	require.Contains(t, reason, "max agent depth")
}

func TestPrepareRunCreatesChildSessionAndReservesSlot(t *testing.T) {
	parent := &model.Session{ID: "parent", ProjectID: "proj", MachineID: "mac", Source: "claude_code"}
	sessions := newFakeSessions(parent)
	slots := newFakeSlots()
	r := agentrunner.New(sessions, slots, nil, nil)

	run, err := r.PrepareRun(context.Background(), agentrunner.PrepareRunRequest{
		Agent:           "reviewer",
		Task:            "review PR",
		ParentSessionID: "parent",
		Workflow:        "orchestrator",
		MaxConcurrent:   3,
		Mode:            model.AgentModeHeadless,
	})
	require.NoError(t, err)
	require.Equal(t, "proj", run.Session.ProjectID)
	require.Equal(t, 1, run.Session.AgentDepth)
	require.Equal(t, 1, slots.reserved["parent/orchestrator"])
}

func TestPrepareRunFailsWhenNoSlotAvailable(t *testing.T) {
	parent := &model.Session{ID: "parent"}
	sessions := newFakeSessions(parent)
	slots := newFakeSlots()
	slots.deny = true
	r := agentrunner.New(sessions, slots, nil, nil)

	_, err := r.PrepareRun(context.Background(), agentrunner.PrepareRunRequest{
		ParentSessionID: "parent",
		Workflow:        "orchestrator",
		MaxConcurrent:   1,
	})
	require.Error(t, err)
}

func TestPrepareRunReleasesSlotWhenIsolationUnconfigured(t *testing.T) {
	parent := &model.Session{ID: "parent"}
	sessions := newFakeSessions(parent)
	slots := newFakeSlots()
	r := agentrunner.New(sessions, slots, nil, nil)

	_, err := r.PrepareRun(context.Background(), agentrunner.PrepareRunRequest{
		ParentSessionID: "parent",
		Workflow:        "orchestrator",
		MaxConcurrent:   1,
		Isolation:       agentrunner.IsolationWorktree,
	})
	require.Error(t, err)
	require.Equal(t, 0, slots.reserved["parent/orchestrator"])
}

func TestSpawnInProcessRunsAsyncAndRemovesOnCompletion(t *testing.T) {
	sessions := newFakeSessions()
	r := agentrunner.New(sessions, nil, nil, nil)
	exec := &fakeInProcess{done: make(chan struct{})}
	r.InProcess = exec

	run, err := r.PrepareRun(context.Background(), agentrunner.PrepareRunRequest{Mode: model.AgentModeInProcess, Agent: "a"})
	require.NoError(t, err)

	runID, sessionID, pid, _, _, err := r.Spawn(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, run.RunID, runID)
	require.Equal(t, run.Session.ID, sessionID)
	require.Zero(t, pid)
	_, ok := r.Registry.Get(runID)
	require.True(t, ok)

	select {
	case <-exec.done:
	case <-time.After(time.Second):
		t.Fatal("in-process run did not complete")
	}
	require.Eventually(t, func() bool {
		_, stillThere := r.Registry.Get(runID)
		return !stillThere
	}, time.Second, time.Millisecond)
}

func TestSpawnHeadlessUsesStrategyAndRegistersPID(t *testing.T) {
	sessions := newFakeSessions()
	r := agentrunner.New(sessions, nil, nil, nil)
	r.Headless = &fakeStrategy{pid: 4242}

	run, err := r.PrepareRun(context.Background(), agentrunner.PrepareRunRequest{Mode: model.AgentModeHeadless, Agent: "a"})
	require.NoError(t, err)

	_, _, pid, _, _, err := r.Spawn(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, 4242, pid)
	got, ok := r.Registry.Get(run.RunID)
	require.True(t, ok)
	require.Equal(t, 4242, got.PID)
}

func TestAsActionSpawnerDefaultsToHeadlessMode(t *testing.T) {
	sessions := newFakeSessions()
	r := agentrunner.New(sessions, nil, nil, nil)
	r.Headless = &fakeStrategy{pid: 99}

	spawner := agentrunner.AsActionSpawner(r)
	runID, err := spawner.Spawn(context.Background(), action.SpawnRequest{Agent: "reviewer"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)
	got, ok := r.Registry.Get(runID)
	require.True(t, ok)
	require.Equal(t, model.AgentModeHeadless, got.Mode)
}
