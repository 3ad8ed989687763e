package pipeline_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/pipeline"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

type fakeStore struct {
	mu    sync.Mutex
	execs map[string]*model.PipelineExecution
	steps map[string]*model.StepExecution
}

func newFakeStore() *fakeStore {
	return &fakeStore{execs: map[string]*model.PipelineExecution{}, steps: map[string]*model.StepExecution{}}
}

func (f *fakeStore) CreatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[pe.ID] = pe
	return nil
}
func (f *fakeStore) GetPipelineExecution(ctx context.Context, id string) (*model.PipelineExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pe, ok := f.execs[id]
	if !ok {
		return nil, gobbyerrors.NewNotFoundError("pipeline_execution", id)
	}
	return pe, nil
}
func (f *fakeStore) GetPipelineExecutionByResumeToken(ctx context.Context, token string) (*model.PipelineExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pe := range f.execs {
		if pe.ResumeToken == token {
			return pe, nil
		}
	}
	return nil, gobbyerrors.NewNotFoundError("pipeline_execution", token)
}
func (f *fakeStore) ListPipelineExecutionsByProject(ctx context.Context, projectID string) ([]*model.PipelineExecution, error) {
	return nil, nil
}
func (f *fakeStore) UpdatePipelineExecution(ctx context.Context, pe *model.PipelineExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[pe.ID] = pe
	return nil
}
func (f *fakeStore) CreateStepExecution(ctx context.Context, se *model.StepExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[se.ID] = se
	return nil
}
func (f *fakeStore) GetStepExecution(ctx context.Context, id string) (*model.StepExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	se, ok := f.steps[id]
	if !ok {
		return nil, gobbyerrors.NewNotFoundError("step_execution", id)
	}
	return se, nil
}
func (f *fakeStore) GetStepExecutionByApprovalToken(ctx context.Context, token string) (*model.StepExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, se := range f.steps {
		if se.ApprovalToken == token {
			return se, nil
		}
	}
	return nil, gobbyerrors.NewNotFoundError("step_execution", token)
}
func (f *fakeStore) ListStepExecutions(ctx context.Context, executionID string) ([]*model.StepExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StepExecution
	for _, se := range f.steps {
		if se.ExecutionID == executionID {
			out = append(out, se)
		}
	}
	return out, nil
}
func (f *fakeStore) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[se.ID] = se
	return nil
}

type fakeLoader struct {
	defs map[string]*workflowdef.PipelineDefinition
}

func (f *fakeLoader) Get(name string) (*workflowdef.PipelineDefinition, error) {
	def, ok := f.defs[name]
	if !ok {
		return nil, gobbyerrors.NewNotFoundError("pipeline", name)
	}
	return def, nil
}

type fakeCommands struct{}

func (fakeCommands) Run(ctx context.Context, command string) (string, string, int, error) {
	return "ok:" + command, "", 0, nil
}

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "summary of: " + prompt, nil
}

func mustParsePipeline(t *testing.T, yaml string) *workflowdef.PipelineDefinition {
	t.Helper()
	def, err := workflowdef.ParsePipeline([]byte(yaml))
	require.NoError(t, err)
	return def
}

func TestRunExecutesExecAndPromptSteps(t *testing.T) {
	def := mustParsePipeline(t, `
name: build-and-summarize
steps:
  - id: build
    exec: "go build ./..."
  - id: notify
    prompt: "Summarize: $build.output.stdout"
outputs:
  - name: build_output
    from: "$build.output.stdout"
`)
	loader := &fakeLoader{defs: map[string]*workflowdef.PipelineDefinition{def.Name: def}}
	store := newFakeStore()
	engine := pipeline.New(store, loader, fakeCommands{}, fakeLLM{}, pipeline.NewWebhookSender(nil, nil), nil)

	id, err := engine.Run(context.Background(), def.Name, nil, true)
	require.NoError(t, err)

	pe, err := store.GetPipelineExecution(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.PipelineExecutionCompleted, pe.Status)

	var outputs map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pe.OutputsJSON), &outputs))
	require.Equal(t, "ok:go build ./...", outputs["build_output"])
}

func TestRunPausesAtApprovalGate(t *testing.T) {
	def := mustParsePipeline(t, `
name: gated
steps:
  - id: deploy
    exec: "deploy.sh"
    approval:
      required: true
      message: "confirm deploy"
`)
	loader := &fakeLoader{defs: map[string]*workflowdef.PipelineDefinition{def.Name: def}}
	store := newFakeStore()
	engine := pipeline.New(store, loader, fakeCommands{}, fakeLLM{}, pipeline.NewWebhookSender(nil, nil), nil)

	id, err := engine.Run(context.Background(), def.Name, nil, true)
	require.True(t, gobbyerrors.IsApprovalRequired(err))

	pe, getErr := store.GetPipelineExecution(context.Background(), id)
	require.NoError(t, getErr)
	require.Equal(t, model.PipelineExecutionWaitingApproval, pe.Status)
	require.NotEmpty(t, pe.ResumeToken)
}

func TestRunSkipsStepWhenConditionFalse(t *testing.T) {
	def := mustParsePipeline(t, `
name: conditional
steps:
  - id: maybe
    exec: "echo hi"
    condition: "input.run == true"
`)
	loader := &fakeLoader{defs: map[string]*workflowdef.PipelineDefinition{def.Name: def}}
	store := newFakeStore()
	engine := pipeline.New(store, loader, fakeCommands{}, fakeLLM{}, pipeline.NewWebhookSender(nil, nil), nil)

	id, err := engine.Run(context.Background(), def.Name, map[string]interface{}{"run": false}, true)
	require.NoError(t, err)

	steps, _ := store.ListStepExecutions(context.Background(), id)
	require.Len(t, steps, 1)
	require.Equal(t, model.StepExecutionSkipped, steps[0].Status)
}

func TestRunFailsExecutionWhenStepErrors(t *testing.T) {
	def := mustParsePipeline(t, `
name: failing
steps:
  - id: boom
    prompt: "this will fail"
`)
	loader := &fakeLoader{defs: map[string]*workflowdef.PipelineDefinition{def.Name: def}}
	store := newFakeStore()
	engine := pipeline.New(store, loader, fakeCommands{}, failingLLM{}, pipeline.NewWebhookSender(nil, nil), nil)

	id, err := engine.Run(context.Background(), def.Name, nil, true)
	require.Error(t, err)

	pe, getErr := store.GetPipelineExecution(context.Background(), id)
	require.NoError(t, getErr)
	require.Equal(t, model.PipelineExecutionFailed, pe.Status)
}

type failingLLM struct{}

func (failingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "", gobbyerrors.New("llm unavailable")
}
