package expression

import (
	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/model"
)

// BuildContext assembles the name-resolution context conditions and
// templates evaluate against: workflow-scoped variables (flattened to the
// top level for convenience, so both `variables.x` and bare `x` resolve),
// session fields under `session.*`, the current step, running action
// counts, and the triggering event's tool_name/tool_args.
func BuildContext(state *model.WorkflowState, sess *model.Session, evt *event.HookEvent) map[string]interface{} {
	ctx := make(map[string]interface{})

	variables := map[string]interface{}{}
	if state != nil {
		if state.Variables != nil {
			variables = state.Variables
		}
		ctx["step"] = state.Step
		ctx["step_action_count"] = state.StepActionCount
		ctx["total_action_count"] = state.TotalActionCount
		ctx["observations"] = state.Observations
	}
	ctx["variables"] = variables
	for k, v := range variables {
		ctx[k] = v
	}

	if sess != nil {
		ctx["session"] = map[string]interface{}{
			"id":                sess.ID,
			"external_id":       sess.ExternalID,
			"source":            sess.Source,
			"project_id":        sess.ProjectID,
			"title":             sess.Title,
			"status":            string(sess.Status),
			"git_branch":        sess.GitBranch,
			"parent_session_id": sess.ParentSessionID,
			"agent_depth":       sess.AgentDepth,
		}
	}

	if evt != nil {
		ctx["tool_name"] = evt.ToolName
		ctx["tool_args"] = evt.ToolInput
		ctx["event_type"] = string(evt.Type)
		ctx["source"] = evt.Source
		ctx["prompt"] = evt.Prompt
	}

	return ctx
}
