package action_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/model"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newFakeSessions(sessions ...*model.Session) *fakeSessions {
	m := map[string]*model.Session{}
	for _, s := range sessions {
		m[s.ID] = s
	}
	return &fakeSessions{sessions: m}
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}

func (f *fakeSessions) Update(ctx context.Context, sess *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess
	return nil
}

type fakeTemplates struct{}

func (fakeTemplates) Render(tmpl string, ctx map[string]interface{}) string { return tmpl }

func TestExecuteUnknownActionErrors(t *testing.T) {
	e := action.New()
	_, err := e.Execute(context.Background(), &action.ActionContext{}, "nonexistent", nil)
	require.Error(t, err)
}

func TestInjectContextFromCompactHandoff(t *testing.T) {
	sessions := newFakeSessions(&model.Session{ID: "s1", CompactMarkdown: "## Continuation Context\n"})
	e := action.New()
	actx := &action.ActionContext{
		SessionID: "s1",
		State:     &model.WorkflowState{SessionID: "s1"},
		Sessions:  sessions,
		Templates: fakeTemplates{},
	}

	res, err := e.Execute(context.Background(), actx, "inject_context", map[string]interface{}{
		"source": "compact_handoff",
	})
	require.NoError(t, err)
	require.Equal(t, "## Continuation Context\n", res["inject_context"])
	require.True(t, actx.State.ContextInjected)
}

func TestInjectContextRequireBlocksOnEmpty(t *testing.T) {
	sessions := newFakeSessions(&model.Session{ID: "s1"})
	e := action.New()
	actx := &action.ActionContext{
		SessionID: "s1",
		State:     &model.WorkflowState{SessionID: "s1"},
		Sessions:  sessions,
		Templates: fakeTemplates{},
	}

	res, err := e.Execute(context.Background(), actx, "inject_context", map[string]interface{}{
		"source":  "compact_handoff",
		"require": true,
	})
	require.NoError(t, err)
	require.Equal(t, "block", res["decision"])
}

func TestSetVariableAndIncrementVariable(t *testing.T) {
	e := action.New()
	actx := &action.ActionContext{State: &model.WorkflowState{Variables: map[string]any{}}}

	_, err := e.Execute(context.Background(), actx, "set_variable", map[string]interface{}{"name": "mode", "value": "strict"})
	require.NoError(t, err)
	require.Equal(t, "strict", actx.State.Variables["mode"])

	res, err := e.Execute(context.Background(), actx, "increment_variable", map[string]interface{}{"name": "count", "by": 2})
	require.NoError(t, err)
	require.Equal(t, 2.0, res["value"])

	_, err = e.Execute(context.Background(), actx, "increment_variable", map[string]interface{}{"name": "count", "by": 3})
	require.NoError(t, err)
	require.Equal(t, 5.0, actx.State.Variables["count"])
}

func TestTransitionTo(t *testing.T) {
	e := action.New()
	actx := &action.ActionContext{State: &model.WorkflowState{Step: "start", StepActionCount: 4}}

	_, err := e.Execute(context.Background(), actx, "transition_to", map[string]interface{}{"step": "await_review"})
	require.NoError(t, err)
	require.Equal(t, "await_review", actx.State.Step)
	require.Equal(t, 0, actx.State.StepActionCount)
}

func TestBackgroundActionRunsAsyncAndDiscardsResult(t *testing.T) {
	e := action.New()
	started := make(chan struct{})
	done := make(chan struct{})
	e.Register("slow_noop", func(ctx context.Context, actx *action.ActionContext, inputs map[string]interface{}) (action.Result, error) {
		close(started)
		defer close(done)
		return action.Result{"should_be_discarded": true}, nil
	})

	res, err := e.Execute(context.Background(), &action.ActionContext{}, "slow_noop", map[string]interface{}{"background": true})
	require.NoError(t, err)
	require.Empty(t, res)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("background action never started")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background action never finished")
	}
}

func TestBackgroundActionErrorInvokesCallback(t *testing.T) {
	e := action.New()
	e.Register("always_fails", func(ctx context.Context, actx *action.ActionContext, inputs map[string]interface{}) (action.Result, error) {
		return nil, context.DeadlineExceeded
	})

	errCh := make(chan error, 1)
	e.OnBackgroundError(func(name string, err error) { errCh <- err })

	_, err := e.Execute(context.Background(), &action.ActionContext{}, "always_fails", map[string]interface{}{"background": true})
	require.NoError(t, err)

	select {
	case gotErr := <-errCh:
		require.Error(t, gotErr)
	case <-time.After(time.Second):
		t.Fatal("background error callback never fired")
	}
}

func TestSpawnAgentNoopWithoutRunner(t *testing.T) {
	e := action.New()
	res, err := e.Execute(context.Background(), &action.ActionContext{}, "spawn_agent", map[string]interface{}{"agent": "worker"})
	require.NoError(t, err)
	require.Equal(t, "skipped", res["spawn_agent"])
}
