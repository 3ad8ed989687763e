// Package workfloweng evaluates a hook event against every active workflow
// instance attached to a session: tool restrictions, step transitions, and
// trigger-driven context injection. It is the single evaluation entry point
// for the step-machine side of workflows (spec.md §4.7); the broader action
// engine in internal/action handles on_enter/on_exit and trigger actions
// beyond inject_context.
package workfloweng

import (
	"log/slog"

	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/expression"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

// exemptTools are read-only MCP discovery tools always allowed regardless of
// a step's tool restrictions, checked against both the bare and
// mcp__gobby__-prefixed forms a client might send.
var exemptTools = map[string]bool{
	"list_mcp_servers":             true,
	"mcp__gobby__list_mcp_servers": true,
	"list_tools":                   true,
	"mcp__gobby__list_tools":       true,
	"get_tool_schema":              true,
	"mcp__gobby__get_tool_schema":  true,
	"recommend_tools":              true,
	"mcp__gobby__recommend_tools":  true,
	"search_tools":                 true,
	"mcp__gobby__search_tools":     true,
}

// maxChainDepth bounds auto-transition chain following so a cycle of
// unconditional transitions can't hang evaluation.
const maxChainDepth = 10

// triggerKeyByEventType maps a hook event type to the trigger key in
// WorkflowDefinition.Triggers that fires for it.
var triggerKeyByEventType = map[event.HookEventType]string{
	event.HookTypeSessionStart: "on_session_start",
	event.HookTypeSessionEnd:   "on_session_end",
	event.HookTypeBeforeTool:   "on_before_tool",
	event.HookTypeAfterTool:    "on_after_tool",
	event.HookTypeBeforeAgent:  "on_before_agent",
	event.HookTypeAfterAgent:   "on_after_agent",
	event.HookTypeStop:         "on_stop",
	event.HookTypePreCompact:   "on_pre_compact",
}

// EvaluationResult accumulates the outcome of evaluating an event across
// every active workflow instance.
type EvaluationResult struct {
	Decision       event.Decision
	ContextParts   []string
	SystemMessages []string
	Reason         string
	BlockedBy      string
	Transitions    map[string]string
}

// NewEvaluationResult returns a result defaulted to allow.
func NewEvaluationResult() *EvaluationResult {
	return &EvaluationResult{
		Decision:    event.DecisionAllow,
		Transitions: make(map[string]string),
	}
}

// ToHookResponse converts the accumulated result into a HookResponse,
// joining context parts with a blank line and system messages with a
// newline so multiple instances can each contribute without clobbering one
// another.
func (r *EvaluationResult) ToHookResponse() *event.HookResponse {
	resp := &event.HookResponse{Decision: r.Decision, Reason: r.Reason}
	if len(r.ContextParts) > 0 {
		resp.Context = joinNonEmpty(r.ContextParts, "\n\n")
	}
	if len(r.SystemMessages) > 0 {
		resp.SystemMessage = joinNonEmpty(r.SystemMessages, "\n")
	}
	return resp
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out == "" {
			out = p
			continue
		}
		out += sep + p
	}
	return out
}

// Instance is one running workflow attached to a session: the persisted
// WorkflowState plus the name it was instantiated from.
type Instance struct {
	State *model.WorkflowState
}

func (i Instance) workflowName() string { return i.State.WorkflowName }

func (i Instance) enabled() bool {
	if i.State.Variables == nil {
		return true
	}
	disabled, _ := i.State.Variables[model.VarDisabled].(bool)
	return !disabled
}

// Evaluate runs evt across instances (caller must pre-sort by priority,
// ascending) against their matching entries in definitions, keyed by
// workflow name. sessionVariables are the session-scoped shared variables
// exposed under session.* in condition context (distinct from the
// session.* object internal/expression.BuildContext composes from
// model.Session fields; callers typically pass the session's own
// variables map here, not the full Session struct).
func Evaluate(
	evt *event.HookEvent,
	sess *model.Session,
	instances []Instance,
	definitions map[string]*workflowdef.WorkflowDefinition,
	evaluator *expression.Evaluator,
	logger *slog.Logger,
) *EvaluationResult {
	result := NewEvaluationResult()
	if logger == nil {
		logger = slog.Default()
	}

	for _, inst := range instances {
		if !inst.enabled() {
			continue
		}
		def, ok := definitions[inst.workflowName()]
		if !ok || def == nil {
			continue
		}

		evalCtx := buildEvalContext(evt, inst, def, sess)

		if evt.Type == event.HookTypeBeforeTool {
			if step, ok := def.StepByName(inst.State.Step); ok && inst.State.Step != "" {
				decision, reason := evaluateStepToolRules(evt.ToolName, step, evalCtx, evaluator, logger)
				if decision == event.DecisionBlock {
					result.Decision = event.DecisionBlock
					result.Reason = reason
					result.BlockedBy = inst.workflowName()
					return result
				}
			}
		}

		if inst.State.Step != "" {
			if step, ok := def.StepByName(inst.State.Step); ok {
				newStep := evaluateStepTransitions(step, evalCtx, evaluator, logger)
				if newStep != "" {
					newStep = followTransitionChain(def, inst.State.Step, newStep, evalCtx, evaluator, logger)
					result.Transitions[inst.workflowName()] = newStep
					if target, ok := def.StepByName(newStep); ok && target.StatusMessage != "" {
						result.ContextParts = append(result.ContextParts, target.StatusMessage)
					}
				}
			}
		}

		result.ContextParts = append(result.ContextParts, evaluateTriggers(evt, def, evalCtx, evaluator, logger)...)
	}

	return result
}

func evaluateStepToolRules(
	toolName string,
	step *workflowdef.StepDefinition,
	evalCtx map[string]interface{},
	evaluator *expression.Evaluator,
	logger *slog.Logger,
) (event.Decision, string) {
	if exemptTools[toolName] {
		return event.DecisionAllow, ""
	}

	for _, blocked := range step.BlockedTools {
		if blocked == toolName {
			return event.DecisionBlock, "Tool '" + toolName + "' is blocked in step '" + step.Name + "'."
		}
	}

	if !step.AllowedTools.All && !step.AllowedTools.Allows(toolName) && len(step.AllowedTools.List) > 0 {
		return event.DecisionBlock, "Tool '" + toolName + "' is not in allowed list for step '" + step.Name + "'."
	}

	for _, rule := range step.Rules {
		if rule.Action != "block" || rule.When == "" {
			continue
		}
		matched, err := evaluator.Evaluate(rule.When, evalCtx)
		if err != nil {
			logger.Debug("rule condition failed to evaluate", "when", rule.When, "error", err)
			continue
		}
		if matched {
			if rule.Message != "" {
				return event.DecisionBlock, rule.Message
			}
			return event.DecisionBlock, "Blocked by rule in step '" + step.Name + "'"
		}
	}

	return event.DecisionAllow, ""
}

func evaluateStepTransitions(
	step *workflowdef.StepDefinition,
	evalCtx map[string]interface{},
	evaluator *expression.Evaluator,
	logger *slog.Logger,
) string {
	for _, t := range step.Transitions {
		matched, err := evaluator.Evaluate(t.When, evalCtx)
		if err != nil {
			logger.Debug("transition condition failed to evaluate", "when", t.When, "error", err)
			continue
		}
		if matched {
			return t.To
		}
	}
	return ""
}

// followTransitionChain follows unconditional/matched transitions out of
// newStep up to maxChainDepth, stopping on a repeat visit or a step with no
// further match.
func followTransitionChain(
	def *workflowdef.WorkflowDefinition,
	currentStep, newStep string,
	evalCtx map[string]interface{},
	evaluator *expression.Evaluator,
	logger *slog.Logger,
) string {
	visited := map[string]bool{currentStep: true, newStep: true}
	depth := 0
	for newStep != "" && depth < maxChainDepth {
		next, ok := def.StepByName(newStep)
		if !ok {
			break
		}
		chainTarget := evaluateStepTransitions(next, evalCtx, evaluator, logger)
		if chainTarget != "" && !visited[chainTarget] {
			visited[chainTarget] = true
			newStep = chainTarget
			depth++
			continue
		}
		break
	}
	return newStep
}

func evaluateTriggers(
	evt *event.HookEvent,
	def *workflowdef.WorkflowDefinition,
	evalCtx map[string]interface{},
	evaluator *expression.Evaluator,
	logger *slog.Logger,
) []string {
	triggerKey, ok := triggerKeyByEventType[evt.Type]
	if !ok {
		return nil
	}
	actions, ok := def.Triggers[triggerKey]
	if !ok {
		return nil
	}

	var parts []string
	for _, action := range actions {
		if action.Action != "inject_context" {
			continue
		}
		if action.When != "" {
			matched, err := evaluator.Evaluate(action.When, evalCtx)
			if err != nil {
				logger.Debug("trigger condition failed to evaluate", "when", action.When, "error", err)
				continue
			}
			if !matched {
				continue
			}
		}
		content, _ := action.Params["content"].(string)
		if content != "" {
			parts = append(parts, content)
		}
	}
	return parts
}

// buildEvalContext merges definition defaults with instance overrides
// (instance wins) and delegates to expression.BuildContext for the
// session/step/event fields, adding the workflow_name key the condition
// grammar expects.
func buildEvalContext(evt *event.HookEvent, inst Instance, def *workflowdef.WorkflowDefinition, sess *model.Session) map[string]interface{} {
	merged := make(map[string]interface{}, len(def.Variables)+len(inst.State.Variables))
	for k, v := range def.Variables {
		merged[k] = v
	}
	for k, v := range inst.State.Variables {
		merged[k] = v
	}

	mergedState := *inst.State
	mergedState.Variables = merged

	ctx := expression.BuildContext(&mergedState, sess, evt)
	ctx["workflow_name"] = inst.workflowName()
	return ctx
}
