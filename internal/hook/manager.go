// Package hook implements the HookManager + Broadcaster of spec.md §4.11:
// the single `Handle(event) -> HookResponse` entry point every adapter
// calls through. It resolves the session a native hook belongs to, runs
// the per-event handlers of §4.12, evaluates the workflow engine against
// every active instance, fires configured webhooks, and broadcasts the
// event to subscribed WebSocket clients, composing one HookResponse out of
// all four.
package hook

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/expression"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/registry"
	"github.com/gobby-dev/gobby/internal/session"
	"github.com/gobby-dev/gobby/internal/storage"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// Sessions is the subset of internal/session.Manager Handle needs.
type Sessions interface {
	Register(ctx context.Context, sess *model.Session) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	GetByExternalID(ctx context.Context, externalID, machineID, source string) (*model.Session, error)
	Update(ctx context.Context, sess *model.Session) error
	SetStatus(ctx context.Context, sess *model.Session, status model.SessionStatus) error
	FindParent(ctx context.Context, machineID, projectID, source string, cfg session.FindParentConfig) (*model.Session, error)
}

// Projects resolves the project a hook's working directory belongs to.
// Optional: a nil Projects leaves Session.ProjectID empty.
type Projects interface {
	EnsureForRepo(ctx context.Context, repoPath, name string) (*model.Project, error)
}

// WorkflowStates is the subset of internal/workflowstate.Manager Handle
// needs to evaluate and persist workflow instance state.
type WorkflowStates interface {
	Get(ctx context.Context, sessionID, workflowName string) (*model.WorkflowState, error)
	ListForSession(ctx context.Context, sessionID string) ([]*model.WorkflowState, error)
	Put(ctx context.Context, ws *model.WorkflowState) error
	Delete(ctx context.Context, sessionID, workflowName string) error
	UpdateOrchestrationLists(ctx context.Context, sessionID, workflowName string, upd storage.OrchestrationListUpdate) (*model.WorkflowState, error)
}

// Definitions resolves every known workflow definition, keyed by name.
// internal/workflowdef.DirLoader implements this.
type Definitions interface {
	All() (map[string]*workflowdef.WorkflowDefinition, error)
}

// Prompts resolves a bundled/user/project prompt, used to render /gobby
// skill content. internal/storage.Store and internal/promptloader.Loader
// both implement this. Optional: a nil Prompts disables skill rendering.
type Prompts interface {
	ResolvePrompt(ctx context.Context, path, projectID string) (*model.Prompt, error)
	ListPromptsByCategory(ctx context.Context, category string) ([]*model.Prompt, error)
}

// Broadcaster fans a handled event and its response out to subscribed
// WebSocket clients. internal/wsapi.Hub implements this. Optional: a nil
// Broadcaster means step 5 of handle() is a no-op, which is harmless for
// adapter-only operation (e.g. CLI hook invocation with no daemon UI
// attached).
type Broadcaster interface {
	Broadcast(evt *event.HookEvent, resp *event.HookResponse)
}

// WebhookConfigs resolves the webhooks configured to fire for a given hook
// event type, read from daemon configuration rather than from a single
// workflow or pipeline definition.
type WebhookConfigs interface {
	ForEventType(t event.HookEventType) []*workflowdef.WebhookConfig
}

// commandPattern matches `/gobby` or `/gobby:<skill>` optionally followed
// by free-form arguments, the slash-command syntax §4.12 intercepts on
// BEFORE_AGENT.
var commandPattern = regexp.MustCompile(`^/gobby(?::([a-zA-Z0-9_-]+))?(?:\s+(.*))?$`)

// skillSuggestThreshold is the minimum keyword-overlap score (§4.12,
// "trigger-based skill suggestion threshold 0.7") before a skill is
// surfaced unsolicited.
const skillSuggestThreshold = 0.7

// Manager implements adapter.Handler: it is the HookManager of spec.md
// §4.11.
type Manager struct {
	Sessions    Sessions
	Projects    Projects
	States      WorkflowStates
	Definitions Definitions
	Prompts     Prompts
	Broadcaster Broadcaster
	Webhooks    WebhookConfigs
	WebhookCall *WebhookCaller

	Actions   *action.Executor
	ActionCtx func(sessionID string, state *model.WorkflowState, evt *event.HookEvent) *action.ActionContext

	Registry  *registry.Registry
	Evaluator *expression.Evaluator
	Templates action.TemplateEngine

	Logger *slog.Logger

	findParentCfg session.FindParentConfig
}

// New constructs a Manager. Evaluator/Logger default when nil so a caller
// can wire only the collaborators it actually has.
func New(sessions Sessions, states WorkflowStates, defs Definitions, actions *action.Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Sessions:      sessions,
		States:        states,
		Definitions:   defs,
		Actions:       actions,
		Registry:      registry.New(),
		Evaluator:     expression.New(),
		Templates:     expression.NewTemplateEngine(),
		WebhookCall:   NewWebhookCaller(),
		Logger:        logger,
		findParentCfg: session.DefaultFindParentConfig,
	}
}

// Handle implements adapter.Handler: the six-step algorithm of spec.md
// §4.11.
func (m *Manager) Handle(ctx context.Context, evt *event.HookEvent) (*event.HookResponse, error) {
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now()
	}

	sess, err := m.resolveSession(ctx, evt)
	if err != nil {
		return nil, err
	}
	evt.SetMeta(event.MetaSessionID, sess.ID)

	resp := m.runEventHandlers(ctx, evt, sess)

	if !resp.IsBlocking() {
		if wfResp := m.runWorkflows(ctx, evt, sess); wfResp != nil {
			mergeResponses(resp, wfResp)
		}
	}

	if !resp.IsBlocking() && m.Webhooks != nil && m.WebhookCall != nil {
		for _, cfg := range m.Webhooks.ForEventType(evt.Type) {
			override, err := m.WebhookCall.Send(ctx, cfg, evt, resp)
			if err != nil {
				m.Logger.Warn("hook webhook delivery failed", "url", cfg.URL, "event_type", evt.Type, "error", err)
				continue
			}
			if override != nil {
				mergeResponses(resp, override)
				if resp.IsBlocking() {
					break
				}
			}
		}
	}

	if m.Broadcaster != nil {
		m.Broadcaster.Broadcast(evt, resp)
	}

	return resp, nil
}

// resolveSession implements step 1: find the session this native hook
// belongs to by its (external_id, machine_id, source) tuple, registering
// one on first contact. A brand-new session with no explicit parent tries
// to chain off a recently handed-off session on the same machine/project/
// source tuple, tolerating the race where the prior session's PRE_COMPACT
// handling hasn't landed yet.
func (m *Manager) resolveSession(ctx context.Context, evt *event.HookEvent) (*model.Session, error) {
	existing, err := m.Sessions.GetByExternalID(ctx, evt.ExternalID, evt.MachineID, evt.Source)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		evt.SetMeta(event.MetaFirstHookForSession, false)
		if evt.TranscriptPath != "" {
			existing.JSONLPath = evt.TranscriptPath
		}
		return existing, nil
	}

	draft := &model.Session{
		ID:         model.NewID(),
		ExternalID: evt.ExternalID,
		MachineID:  evt.MachineID,
		Source:     evt.Source,
		Status:     model.SessionStatusActive,
		JSONLPath:  evt.TranscriptPath,
	}

	if evt.CWD != "" && m.Projects != nil {
		if proj, err := m.Projects.EnsureForRepo(ctx, evt.CWD, filepath.Base(evt.CWD)); err == nil && proj != nil {
			draft.ProjectID = proj.ID
		}
	}

	if evt.ParentSessionID != "" {
		draft.ParentSessionID = evt.ParentSessionID
		if parent, err := m.Sessions.Get(ctx, evt.ParentSessionID); err == nil && parent != nil {
			draft.AgentDepth = parent.AgentDepth + 1
		}
	} else if draft.ProjectID != "" {
		parent, err := m.Sessions.FindParent(ctx, evt.MachineID, draft.ProjectID, evt.Source, m.findParentCfg)
		if err == nil && parent != nil {
			draft.ParentSessionID = parent.ID
			draft.AgentDepth = parent.AgentDepth + 1
		}
	}

	sess, err := m.Sessions.Register(ctx, draft)
	if err != nil {
		return nil, err
	}
	evt.SetMeta(event.MetaFirstHookForSession, true)
	return sess, nil
}

func mergeResponses(into, from *event.HookResponse) {
	if from == nil {
		return
	}
	if from.IsBlocking() {
		into.Decision = from.Decision
		if from.Reason != "" {
			into.Reason = from.Reason
		}
	} else if from.Decision == event.DecisionModify && into.Decision == event.DecisionAllow {
		into.Decision = from.Decision
	}
	into.MergeContext(from.Context)
	if from.SystemMessage != "" {
		if into.SystemMessage == "" {
			into.SystemMessage = from.SystemMessage
		} else {
			into.SystemMessage = into.SystemMessage + "\n" + from.SystemMessage
		}
	}
	for k, v := range from.Metadata {
		into.SetMeta(k, v)
	}
}
