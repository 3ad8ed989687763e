package hook

import (
	"context"
	"sort"
	"time"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/workfloweng"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// lifecycleTriggerKey mirrors internal/workfloweng's unexported
// triggerKeyByEventType: the trigger key in a workflow definition's
// Triggers map that fires for a given hook event type. workfloweng.Evaluate
// already runs inject_context triggers under this key; runLifecycleActions
// below runs every *other* trigger action (§4.7 step 5's "other trigger
// actions are routed through the ActionExecutor in a separate pass").
var lifecycleTriggerKey = map[event.HookEventType]string{
	event.HookTypeSessionStart: "on_session_start",
	event.HookTypeSessionEnd:   "on_session_end",
	event.HookTypeBeforeTool:   "on_before_tool",
	event.HookTypeAfterTool:    "on_after_tool",
	event.HookTypeBeforeAgent:  "on_before_agent",
	event.HookTypeAfterAgent:   "on_after_agent",
	event.HookTypeStop:         "on_stop",
	event.HookTypePreCompact:   "on_pre_compact",
}

// runWorkflows implements step 3 of handle(): evaluate every active
// workflow instance attached to sess against evt, persist any step
// transitions and their on_enter/on_exit actions, run this event's
// non-inject_context trigger actions, and return the composed response.
func (m *Manager) runWorkflows(ctx context.Context, evt *event.HookEvent, sess *model.Session) *event.HookResponse {
	if m.Definitions == nil || m.States == nil {
		return nil
	}

	defs, err := m.Definitions.All()
	if err != nil {
		m.Logger.Warn("loading workflow definitions failed", "error", err)
		return nil
	}
	if len(defs) == 0 {
		return nil
	}

	states, err := m.States.ListForSession(ctx, sess.ID)
	if err != nil {
		m.Logger.Warn("listing workflow states failed", "session_id", sess.ID, "error", err)
		return nil
	}
	states = m.attachMissingInstances(ctx, sess, defs, states)

	instances := make([]workfloweng.Instance, 0, len(states))
	byName := make(map[string]*model.WorkflowState, len(states))
	for _, ws := range states {
		instances = append(instances, workfloweng.Instance{State: ws})
		byName[ws.WorkflowName] = ws
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return priorityOf(defs, instances[i]) < priorityOf(defs, instances[j])
	})

	result := workfloweng.Evaluate(evt, sess, instances, defs, m.Evaluator, m.Logger)
	resp := result.ToHookResponse()

	for name, newStep := range result.Transitions {
		ws, ok := byName[name]
		if !ok {
			continue
		}
		def, ok := defs[name]
		if !ok {
			continue
		}
		m.applyTransition(ctx, evt, ws, def, newStep, resp)
	}

	for name, ws := range byName {
		def, ok := defs[name]
		if !ok {
			continue
		}
		m.runLifecycleTrigger(ctx, evt, ws, def, resp)
		ws.TotalActionCount++
		ws.StepActionCount++
		if err := m.States.Put(ctx, ws); err != nil {
			m.Logger.Warn("persisting workflow state failed", "workflow", name, "error", err)
		}
	}

	return resp
}

// attachMissingInstances auto-attaches every known workflow definition to
// the session the first time it is evaluated, entering its first declared
// step. spec.md describes evaluation of "active instances" but never the
// attach trigger itself; this daemon treats every loaded definition as
// implicitly active for every session, matching the teacher's bundled
// workflows being always-on rather than requiring an explicit enable step.
// model.VarDisabled still lets an instance opt itself out afterward.
func (m *Manager) attachMissingInstances(ctx context.Context, sess *model.Session, defs map[string]*workflowdef.WorkflowDefinition, existing []*model.WorkflowState) []*model.WorkflowState {
	have := make(map[string]bool, len(existing))
	for _, ws := range existing {
		have[ws.WorkflowName] = true
	}

	for name, def := range defs {
		if have[name] || len(def.Steps) == 0 {
			continue
		}
		ws := &model.WorkflowState{
			SessionID:     sess.ID,
			WorkflowName:  name,
			Step:          def.Steps[0].Name,
			StepEnteredAt: time.Now(),
			Variables:     map[string]interface{}{},
			UpdatedAt:     time.Now(),
		}
		if err := m.States.Put(ctx, ws); err != nil {
			m.Logger.Warn("attaching workflow instance failed", "workflow", name, "error", err)
			continue
		}
		existing = append(existing, ws)
	}
	return existing
}

func priorityOf(defs map[string]*workflowdef.WorkflowDefinition, inst workfloweng.Instance) int {
	if def, ok := defs[inst.State.WorkflowName]; ok {
		return def.Priority
	}
	return 0
}

// applyTransition persists a step transition and runs the outgoing step's
// on_exit actions followed by the incoming step's on_enter actions,
// folding each action's Result into resp.
func (m *Manager) applyTransition(ctx context.Context, evt *event.HookEvent, ws *model.WorkflowState, def *workflowdef.WorkflowDefinition, newStep string, resp *event.HookResponse) {
	if m.Actions == nil {
		ws.Step = newStep
		ws.StepEnteredAt = time.Now()
		ws.StepActionCount = 0
		return
	}

	actx := m.actionContext(evt, ws)
	if old, ok := def.StepByName(ws.Step); ok {
		m.runActionConfigs(ctx, actx, old.OnExit, resp)
	}

	ws.Step = newStep
	ws.StepEnteredAt = time.Now()
	ws.StepActionCount = 0

	if next, ok := def.StepByName(newStep); ok {
		m.runActionConfigs(ctx, actx, next.OnEnter, resp)
	}
}

// runLifecycleTrigger runs every non-inject_context trigger action
// configured for evt's type on ws's workflow — inject_context triggers
// were already folded into resp by workfloweng.Evaluate.
func (m *Manager) runLifecycleTrigger(ctx context.Context, evt *event.HookEvent, ws *model.WorkflowState, def *workflowdef.WorkflowDefinition, resp *event.HookResponse) {
	if m.Actions == nil {
		return
	}
	key, ok := lifecycleTriggerKey[evt.Type]
	if !ok {
		return
	}
	actions, ok := def.Triggers[key]
	if !ok {
		return
	}

	actx := m.actionContext(evt, ws)
	var configs []workflowdef.ActionConfig
	for _, a := range actions {
		if a.Action == "inject_context" {
			continue
		}
		configs = append(configs, a)
	}
	m.runActionConfigs(ctx, actx, configs, resp)
}

func (m *Manager) runActionConfigs(ctx context.Context, actx *action.ActionContext, configs []workflowdef.ActionConfig, resp *event.HookResponse) {
	for _, cfg := range configs {
		if cfg.When != "" && m.Evaluator != nil {
			matched, err := m.Evaluator.Evaluate(cfg.When, m.evalContextFor(actx))
			if err != nil {
				m.Logger.Debug("action condition failed to evaluate", "action", cfg.Action, "error", err)
				continue
			}
			if !matched {
				continue
			}
		}
		result, err := m.Actions.Execute(ctx, actx, cfg.Action, cfg.Params)
		if err != nil {
			m.Logger.Warn("workflow action failed", "action", cfg.Action, "error", err)
			continue
		}
		applyActionResult(resp, result)
	}
}

func (m *Manager) evalContextFor(actx *action.ActionContext) map[string]interface{} {
	vars := map[string]interface{}{}
	if actx.State != nil {
		for k, v := range actx.State.Variables {
			vars[k] = v
		}
	}
	return vars
}

func (m *Manager) actionContext(evt *event.HookEvent, ws *model.WorkflowState) *action.ActionContext {
	actx := &action.ActionContext{
		SessionID: ws.SessionID,
		State:     ws,
		Event:     evt,
		Templates: m.Templates,
		Evaluator: m.Evaluator,
	}
	if m.ActionCtx != nil {
		custom := m.ActionCtx(ws.SessionID, ws, evt)
		if custom != nil {
			custom.State = ws
			custom.Event = evt
			return custom
		}
	}
	return actx
}

// applyActionResult folds a handler's Result map into the composed
// response using the key conventions internal/action's handlers emit.
func applyActionResult(resp *event.HookResponse, result action.Result) {
	if result == nil {
		return
	}
	if decision, _ := result["decision"].(string); decision == "block" {
		resp.Decision = event.DecisionBlock
		if reason, _ := result["reason"].(string); reason != "" {
			resp.Reason = reason
		}
	}
	if ctxText, _ := result["inject_context"].(string); ctxText != "" {
		resp.MergeContext(ctxText)
	}
	if msg, _ := result["inject_message"].(string); msg != "" {
		if resp.SystemMessage == "" {
			resp.SystemMessage = msg
		} else {
			resp.SystemMessage = resp.SystemMessage + "\n" + msg
		}
	}
}
