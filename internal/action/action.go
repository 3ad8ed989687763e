// Package action implements the ActionExecutor of spec.md §4.6: a dispatch
// table from action name to handler, each receiving an ActionContext that
// bundles the session id, the workflow instance's mutable state, and the
// collaborators a handler may need. Handlers are side-effect explicit —
// their return value is a map merged verbatim into the engine's per-event
// response — mirroring the teacher's action.Execute(ctx, operation, inputs)
// connector pattern (internal/action/{shell,utility}.Execute) generalized
// from a flat operation namespace to named workflow actions.
package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/expression"
	"github.com/gobby-dev/gobby/internal/model"
)

// SessionManager is the subset of internal/session.Manager an action needs.
type SessionManager interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Update(ctx context.Context, sess *model.Session) error
}

// TemplateEngine renders inject_message/inject_context templates.
type TemplateEngine interface {
	Render(tmpl string, ctx map[string]interface{}) string
}

// LLM is the language-model boundary used by synthesize_title and the
// memory_* actions. A nil LLM on ActionContext disables those actions.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// MemoryService is the pluggable memory boundary used by the memory_*
// action family. A nil MemoryService means memory actions are no-ops.
type MemoryService interface {
	Save(ctx context.Context, projectID, content string) error
	RecallRelevant(ctx context.Context, projectID, query string, limit int) ([]string, error)
	ProjectContext(ctx context.Context, projectID string) (string, error)
	ExtractFromSession(ctx context.Context, sessionID string) ([]string, error)
	SyncImport(ctx context.Context, projectID string) (int, error)
	SyncExport(ctx context.Context, projectID string) (int, error)
}

// AgentSpawner proxies spawn_agent to the AgentRunner (§4.8).
type AgentSpawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (runID string, err error)
}

// SpawnRequest mirrors spawn_agent's action config.
type SpawnRequest struct {
	Agent     string
	Task      string
	Prompt    string
	Workflow  string
	Mode      string
	Isolation string
	SessionID string
}

// PipelineExecutor proxies run_pipeline to the pipeline engine (§4.9).
type PipelineExecutor interface {
	Run(ctx context.Context, name string, inputs map[string]interface{}, awaitCompletion bool) (executionID string, err error)
}

// ActionContext bundles everything a handler may consult. Collaborator
// fields beyond Session/State/Template are optional — a handler whose
// collaborator is nil degrades to a no-op rather than panicking.
type ActionContext struct {
	SessionID string
	State     *model.WorkflowState
	Event     *event.HookEvent

	Sessions  SessionManager
	Templates TemplateEngine
	Evaluator *expression.Evaluator

	LLM      LLM
	Memory   MemoryService
	Agents   AgentSpawner
	Pipeline PipelineExecutor
}

// Result is what a handler returns: fields merged into the engine's
// per-event response, plus an optional metadata bag for logging/tests.
type Result map[string]interface{}

// Handler executes one named action against inputs drawn from its
// workflow-YAML config (already template/variable resolved by the caller
// where applicable).
type Handler func(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error)

// Executor is the dispatch table from action name to Handler.
type Executor struct {
	handlers map[string]Handler

	mu          sync.Mutex
	background  map[int64]struct{}
	nextBgID    int64
	onBgError   func(action string, err error)
}

// New constructs an Executor with every core action from spec.md §4.6
// registered.
func New() *Executor {
	e := &Executor{
		handlers:   make(map[string]Handler),
		background: make(map[int64]struct{}),
	}
	e.Register("inject_context", injectContext)
	e.Register("inject_message", injectMessage)
	e.Register("restore_context", restoreContext)
	e.Register("extract_handoff_context", extractHandoffContext)
	e.Register("set_variable", setVariable)
	e.Register("increment_variable", incrementVariable)
	e.Register("transition_to", transitionTo)
	e.Register("spawn_agent", spawnAgent)
	e.Register("run_pipeline", runPipeline)
	e.Register("synthesize_title", synthesizeTitle)
	e.Register("memory_save", memorySave)
	e.Register("memory_recall_relevant", memoryRecallRelevant)
	e.Register("memory_inject_project_context", memoryInjectProjectContext)
	e.Register("memory_extract_from_session", memoryExtractFromSession)
	e.Register("memory_review_gate", memoryReviewGate)
	e.Register("memory_sync_import", memorySyncImport)
	e.Register("memory_sync_export", memorySyncExport)
	return e
}

// Register adds or overrides the handler for name.
func (e *Executor) Register(name string, h Handler) {
	e.handlers[name] = h
}

// OnBackgroundError installs a callback invoked when a background-dispatched
// action's handler returns an error, matching the "errors are logged via
// done-callback" contract for background tasks.
func (e *Executor) OnBackgroundError(fn func(action string, err error)) {
	e.onBgError = fn
}

// Execute runs the named action. If inputs carries a truthy "background"
// key, the executor pops it, dispatches the handler as a fire-and-forget
// goroutine tracked in a process-wide set, and returns immediately with an
// empty Result — the background result is discarded, never merged into the
// hook response, per spec.md §4.6.
func (e *Executor) Execute(ctx context.Context, actx *ActionContext, name string, inputs map[string]interface{}) (Result, error) {
	h, ok := e.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown action: %s", name)
	}

	background, _ := inputs["background"].(bool)
	if background {
		delete(inputs, "background")
		e.runBackground(actx, name, h, inputs)
		return Result{}, nil
	}

	return h(ctx, actx, inputs)
}

func (e *Executor) runBackground(actx *ActionContext, name string, h Handler, inputs map[string]interface{}) {
	e.mu.Lock()
	id := e.nextBgID
	e.nextBgID++
	e.background[id] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.background, id)
			e.mu.Unlock()
		}()
		if _, err := h(context.Background(), actx, inputs); err != nil && e.onBgError != nil {
			e.onBgError(name, err)
		}
	}()
}

// BackgroundCount reports the number of background actions still running,
// used by tests and graceful-shutdown draining.
func (e *Executor) BackgroundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.background)
}
