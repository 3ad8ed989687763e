package hook_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/hook"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/session"
	"github.com/gobby-dev/gobby/internal/storage"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

type fakeSessions struct {
	mu  sync.Mutex
	byTuple map[string]*model.Session
	byID    map[string]*model.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byTuple: map[string]*model.Session{}, byID: map[string]*model.Session{}}
}

func key(externalID, machineID, source string) string {
	return externalID + "|" + machineID + "|" + source
}

func (f *fakeSessions) Register(ctx context.Context, sess *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(sess.ExternalID, sess.MachineID, sess.Source)
	if existing, ok := f.byTuple[k]; ok {
		return existing, nil
	}
	f.byTuple[k] = sess
	f.byID[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeSessions) GetByExternalID(ctx context.Context, externalID, machineID, source string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byTuple[key(externalID, machineID, source)], nil
}

func (f *fakeSessions) Update(ctx context.Context, sess *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[sess.ID] = sess
	return nil
}

func (f *fakeSessions) SetStatus(ctx context.Context, sess *model.Session, status model.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess.Status = status
	f.byID[sess.ID] = sess
	return nil
}

func (f *fakeSessions) FindParent(ctx context.Context, machineID, projectID, source string, cfg session.FindParentConfig) (*model.Session, error) {
	return nil, nil
}

type fakeStates struct {
	mu   sync.Mutex
	byKey map[string]*model.WorkflowState
}

func newFakeStates() *fakeStates {
	return &fakeStates{byKey: map[string]*model.WorkflowState{}}
}

func stateKey(sessionID, workflowName string) string { return sessionID + "|" + workflowName }

func (f *fakeStates) Get(ctx context.Context, sessionID, workflowName string) (*model.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byKey[stateKey(sessionID, workflowName)], nil
}

func (f *fakeStates) ListForSession(ctx context.Context, sessionID string) ([]*model.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WorkflowState
	for _, ws := range f.byKey {
		if ws.SessionID == sessionID {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeStates) Put(ctx context.Context, ws *model.WorkflowState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[stateKey(ws.SessionID, ws.WorkflowName)] = ws
	return nil
}

func (f *fakeStates) Delete(ctx context.Context, sessionID, workflowName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byKey, stateKey(sessionID, workflowName))
	return nil
}

func (f *fakeStates) UpdateOrchestrationLists(ctx context.Context, sessionID, workflowName string, upd storage.OrchestrationListUpdate) (*model.WorkflowState, error) {
	return f.byKey[stateKey(sessionID, workflowName)], nil
}

type fakeDefs struct {
	defs map[string]*workflowdef.WorkflowDefinition
}

func (f *fakeDefs) All() (map[string]*workflowdef.WorkflowDefinition, error) { return f.defs, nil }

func mustParse(t *testing.T, yaml string) *workflowdef.WorkflowDefinition {
	t.Helper()
	def, err := workflowdef.Parse([]byte(yaml))
	require.NoError(t, err)
	return def
}

func newManager(t *testing.T, sessions *fakeSessions, states *fakeStates, defs map[string]*workflowdef.WorkflowDefinition) *hook.Manager {
	m := hook.New(sessions, states, &fakeDefs{defs: defs}, action.New(), nil)
	m.WebhookCall = nil
	return m
}

func TestHandleRegistersSessionOnFirstContact(t *testing.T) {
	sessions := newFakeSessions()
	states := newFakeStates()
	m := newManager(t, sessions, states, nil)

	evt := &event.HookEvent{Type: event.HookTypeBeforeAgent, Source: "claude", ExternalID: "ext-1", MachineID: "mac", Prompt: "hello"}
	resp, err := m.Handle(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, event.DecisionAllow, resp.Decision)

	sess, err := sessions.GetByExternalID(context.Background(), "ext-1", "mac", "claude")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, model.SessionStatusActive, sess.Status)
}

func TestHandleInterceptsGobbyCommand(t *testing.T) {
	sessions := newFakeSessions()
	states := newFakeStates()
	m := newManager(t, sessions, states, nil)

	evt := &event.HookEvent{Type: event.HookTypeBeforeAgent, Source: "claude", ExternalID: "ext-2", MachineID: "mac", Prompt: "/gobby"}
	resp, err := m.Handle(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, event.DecisionBlock, resp.Decision)
	require.Contains(t, resp.SystemMessage, "no skills are currently installed")
}

func TestHandleSetsPausedOnStop(t *testing.T) {
	sessions := newFakeSessions()
	states := newFakeStates()
	m := newManager(t, sessions, states, nil)

	evt := &event.HookEvent{Type: event.HookTypeStop, Source: "claude", ExternalID: "ext-3", MachineID: "mac"}
	_, err := m.Handle(context.Background(), evt)
	require.NoError(t, err)

	sess, err := sessions.GetByExternalID(context.Background(), "ext-3", "mac", "claude")
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusPaused, sess.Status)
}

func TestHandlePreCompactIgnoredForGemini(t *testing.T) {
	sessions := newFakeSessions()
	states := newFakeStates()
	m := newManager(t, sessions, states, nil)

	evt := &event.HookEvent{Type: event.HookTypePreCompact, Source: "gemini", ExternalID: "ext-4", MachineID: "mac"}
	_, err := m.Handle(context.Background(), evt)
	require.NoError(t, err)

	sess, err := sessions.GetByExternalID(context.Background(), "ext-4", "mac", "gemini")
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusActive, sess.Status)
}

func TestHandleBlocksToolViaWorkflowStepRestriction(t *testing.T) {
	def := mustParse(t, `
name: locked_down
steps:
  - name: reviewing
    allowed_tools: []
    blocked_tools: ["Bash"]
`)
	sessions := newFakeSessions()
	states := newFakeStates()
	m := newManager(t, sessions, states, map[string]*workflowdef.WorkflowDefinition{"locked_down": def})

	start := &event.HookEvent{Type: event.HookTypeBeforeAgent, Source: "claude", ExternalID: "ext-5", MachineID: "mac", Prompt: "go"}
	_, err := m.Handle(context.Background(), start)
	require.NoError(t, err)

	toolEvt := &event.HookEvent{Type: event.HookTypeBeforeTool, Source: "claude", ExternalID: "ext-5", MachineID: "mac", ToolName: "Bash"}
	resp, err := m.Handle(context.Background(), toolEvt)
	require.NoError(t, err)
	require.Equal(t, event.DecisionBlock, resp.Decision)
}
