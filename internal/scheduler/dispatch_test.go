package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/model"
)

type fakeShellRunner struct {
	stdout, stderr string
	exitCode       int
	err            error
	lastCommand    string
}

func (f *fakeShellRunner) Run(ctx context.Context, command string) (string, string, int, error) {
	f.lastCommand = command
	return f.stdout, f.stderr, f.exitCode, f.err
}

type fakeAgentSpawner struct {
	runID string
	err   error
	last  action.SpawnRequest
}

func (f *fakeAgentSpawner) Spawn(ctx context.Context, req action.SpawnRequest) (string, error) {
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.runID, nil
}

type fakePipelineExecutor struct {
	execID string
	err    error
	name   string
	inputs map[string]interface{}
}

func (f *fakePipelineExecutor) Run(ctx context.Context, name string, inputs map[string]interface{}, await bool) (string, error) {
	f.name = name
	f.inputs = inputs
	if f.err != nil {
		return "", f.err
	}
	return f.execID, nil
}

func TestDispatchShellSuccess(t *testing.T) {
	shell := &fakeShellRunner{stdout: "done", exitCode: 0}
	d := NewDispatcher(shell, nil, nil)
	job := &model.CronJob{ActionType: model.CronActionShell, ActionConfig: `{"command":"echo hi"}`}

	_, _, output, err := d.Dispatch(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "done", output)
	require.Equal(t, "echo hi", shell.lastCommand)
}

func TestDispatchShellNonZeroExitIsError(t *testing.T) {
	shell := &fakeShellRunner{stdout: "oops", exitCode: 1}
	d := NewDispatcher(shell, nil, nil)
	job := &model.CronJob{ActionType: model.CronActionShell, ActionConfig: `{"command":"false"}`}

	_, _, _, err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
}

func TestDispatchShellNotConfigured(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	job := &model.CronJob{ActionType: model.CronActionShell, ActionConfig: `{"command":"echo hi"}`}

	_, _, _, err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
}

func TestDispatchAgentSpawnSuccess(t *testing.T) {
	spawner := &fakeAgentSpawner{runID: "run-9"}
	d := NewDispatcher(nil, spawner, nil)
	job := &model.CronJob{ID: "cj-1", ActionType: model.CronActionAgentSpawn, ActionConfig: `{"agent":"reviewer","prompt":"check the build"}`}

	runID, _, _, err := d.Dispatch(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "run-9", runID)
	require.Equal(t, "reviewer", spawner.last.Agent)
	require.Equal(t, "cron:cj-1", spawner.last.SessionID)
}

func TestDispatchAgentSpawnError(t *testing.T) {
	spawner := &fakeAgentSpawner{err: errors.New("boom")}
	d := NewDispatcher(nil, spawner, nil)
	job := &model.CronJob{ActionType: model.CronActionAgentSpawn, ActionConfig: `{}`}

	_, _, _, err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
}

func TestDispatchPipelineRunSuccess(t *testing.T) {
	exec := &fakePipelineExecutor{execID: "exec-1"}
	d := NewDispatcher(nil, nil, exec)
	job := &model.CronJob{ActionType: model.CronActionPipelineRun, ActionConfig: `{"name":"nightly-build","inputs":{"branch":"main"}}`}

	_, execID, _, err := d.Dispatch(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "exec-1", execID)
	require.Equal(t, "nightly-build", exec.name)
	require.Equal(t, "main", exec.inputs["branch"])
}

func TestDispatchPipelineRunMissingName(t *testing.T) {
	exec := &fakePipelineExecutor{}
	d := NewDispatcher(nil, nil, exec)
	job := &model.CronJob{ActionType: model.CronActionPipelineRun, ActionConfig: `{}`}

	_, _, _, err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
}

func TestDispatchUnknownActionType(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	job := &model.CronJob{ActionType: "bogus"}

	_, _, _, err := d.Dispatch(context.Background(), job)
	require.Error(t, err)
}
