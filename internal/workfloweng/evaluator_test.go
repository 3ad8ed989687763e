package workfloweng_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/expression"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/workfloweng"
	"github.com/gobby-dev/gobby/internal/workflowdef"
)

const toolStepWorkflow = `
name: guarded
steps:
  - name: locked
    allowed_tools: ["bash"]
    blocked_tools: ["rm"]
    rules:
      - when: "tool_name == 'curl'"
        action: block
        message: "no network calls here"
    transitions:
      - to: done
        when: "variables.ready == true"
  - name: done
`

func mustParse(t *testing.T, yaml string) *workflowdef.WorkflowDefinition {
	t.Helper()
	def, err := workflowdef.Parse([]byte(yaml))
	require.NoError(t, err)
	return def
}

func newInstance(workflowName, step string, vars map[string]interface{}) workfloweng.Instance {
	return workfloweng.Instance{State: &model.WorkflowState{
		WorkflowName: workflowName,
		Step:         step,
		Variables:    vars,
	}}
}

func TestEvaluateBlocksToolNotInAllowedList(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "python"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionBlock, result.Decision)
	require.Equal(t, "guarded", result.BlockedBy)
	require.Contains(t, result.Reason, "not in allowed list")
}

func TestEvaluateBlocksExplicitlyBlockedTool(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "rm"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionBlock, result.Decision)
	require.Contains(t, result.Reason, "is blocked")
}

func TestEvaluateBlocksByRuleCondition(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "curl"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionBlock, result.Decision)
	require.Equal(t, "no network calls here", result.Reason)
}

func TestEvaluateExemptToolBypassesRestrictions(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "mcp__gobby__list_tools"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionAllow, result.Decision)
}

func TestEvaluateAllowsWhitelistedTool(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "bash"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionAllow, result.Decision)
}

func TestEvaluateTransitionsStepAndReportsStatusMessage(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	instances := []workfloweng.Instance{newInstance("guarded", "locked", map[string]interface{}{"ready": true})}
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeAfterTool, ToolName: "bash"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, "done", result.Transitions["guarded"])
}

func TestEvaluateFollowsChainOfUnconditionalTransitions(t *testing.T) {
	def := mustParse(t, `
name: chained
steps:
  - name: a
    transitions:
      - to: b
        when: "true"
  - name: b
    transitions:
      - to: c
        when: "true"
  - name: c
    status_message: "arrived"
`)
	instances := []workfloweng.Instance{newInstance("chained", "a", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"chained": def}

	evt := &event.HookEvent{Type: event.HookTypeAfterTool}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, "c", result.Transitions["chained"])
	require.Contains(t, result.ContextParts, "arrived")
}

func TestEvaluateSkipsDisabledInstance(t *testing.T) {
	def := mustParse(t, toolStepWorkflow)
	inst := newInstance("guarded", "locked", map[string]interface{}{model.VarDisabled: true})
	defs := map[string]*workflowdef.WorkflowDefinition{"guarded": def}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "rm"}
	result := workfloweng.Evaluate(evt, nil, []workfloweng.Instance{inst}, defs, expression.New(), nil)

	require.Equal(t, event.DecisionAllow, result.Decision)
}

func TestEvaluateInjectContextTrigger(t *testing.T) {
	def := mustParse(t, `
name: greeter
triggers:
  on_session_start:
    - action: inject_context
      content: "welcome back"
steps:
  - name: only
`)
	instances := []workfloweng.Instance{newInstance("greeter", "only", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"greeter": def}

	evt := &event.HookEvent{Type: event.HookTypeSessionStart}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Contains(t, result.ContextParts, "welcome back")
}

func TestEvaluateInjectContextTriggerHonorsWhen(t *testing.T) {
	def := mustParse(t, `
name: greeter
triggers:
  on_session_start:
    - action: inject_context
      when: "variables.verbose == true"
      content: "welcome back"
steps:
  - name: only
`)
	instances := []workfloweng.Instance{newInstance("greeter", "only", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{"greeter": def}

	evt := &event.HookEvent{Type: event.HookTypeSessionStart}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Empty(t, result.ContextParts)
}

func TestEvaluateSkipsInstanceWithoutMatchingDefinition(t *testing.T) {
	instances := []workfloweng.Instance{newInstance("ghost", "only", nil)}
	defs := map[string]*workflowdef.WorkflowDefinition{}

	evt := &event.HookEvent{Type: event.HookTypeBeforeTool, ToolName: "rm"}
	result := workfloweng.Evaluate(evt, nil, instances, defs, expression.New(), nil)

	require.Equal(t, event.DecisionAllow, result.Decision)
}

func TestToHookResponseJoinsPartsAndMessages(t *testing.T) {
	result := workfloweng.NewEvaluationResult()
	result.ContextParts = []string{"first", "second"}
	result.SystemMessages = []string{"note one", "note two"}

	resp := result.ToHookResponse()
	require.Equal(t, "first\n\nsecond", resp.Context)
	require.Equal(t, "note one\nnote two", resp.SystemMessage)
}
