package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gobby-dev/gobby/internal/model"
)

// Context-source identifiers for inject_context's `source` field.
const (
	SourcePreviousSessionSummary = "previous_session_summary"
	SourceHandoff                = "handoff"
	SourceArtifacts              = "artifacts"
	SourceObservations           = "observations"
	SourceWorkflowState          = "workflow_state"
	SourceCompactHandoff         = "compact_handoff"
)

// injectContext implements spec.md §4.6's inject_context action: pulls
// content from one of six sources, renders it through an optional template,
// and blocks the event when require=true finds nothing.
func injectContext(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Sessions == nil || actx.State == nil || actx.Templates == nil || actx.SessionID == "" {
		return nil, nil
	}

	source, _ := inputs["source"].(string)
	if source == "" {
		return nil, nil
	}
	template, _ := inputs["template"].(string)
	require, _ := inputs["require"].(bool)

	content, err := resolveContextSource(ctx, actx, source)
	if err != nil {
		return nil, err
	}

	if content == "" {
		if require {
			return Result{
				"decision": "block",
				"reason":   fmt.Sprintf("required handoff context not found (source=%s)", source),
			}, nil
		}
		return nil, nil
	}

	if template != "" {
		content = actx.Templates.Render(template, contextRenderVars(actx, source, content))
	}

	actx.State.ContextInjected = true
	return Result{"inject_context": content}, nil
}

func resolveContextSource(ctx context.Context, actx *ActionContext, source string) (string, error) {
	switch source {
	case SourcePreviousSessionSummary, SourceHandoff:
		sess, err := actx.Sessions.Get(ctx, actx.SessionID)
		if err != nil || sess == nil || sess.ParentSessionID == "" {
			return "", nil
		}
		parent, err := actx.Sessions.Get(ctx, sess.ParentSessionID)
		if err != nil || parent == nil {
			return "", nil
		}
		return parent.SummaryMarkdown, nil

	case SourceArtifacts:
		artifacts := artifactsOf(actx.State)
		if len(artifacts) == 0 {
			return "", nil
		}
		lines := "## Captured Artifacts\n"
		for name, path := range artifacts {
			lines += fmt.Sprintf("- %s: %s\n", name, path)
		}
		return lines, nil

	case SourceObservations:
		if len(actx.State.Observations) == 0 {
			return "", nil
		}
		b, _ := json.MarshalIndent(actx.State.Observations, "", "  ")
		return "## Observations\n" + string(b), nil

	case SourceWorkflowState:
		b, _ := json.MarshalIndent(map[string]interface{}{
			"session_id":          actx.State.SessionID,
			"workflow_name":       actx.State.WorkflowName,
			"step":                actx.State.Step,
			"step_action_count":   actx.State.StepActionCount,
			"total_action_count":  actx.State.TotalActionCount,
			"context_injected":    actx.State.ContextInjected,
			"reflection_pending":  actx.State.ReflectionPending,
		}, "", "  ")
		return "## Workflow State\n" + string(b), nil

	case SourceCompactHandoff:
		sess, err := actx.Sessions.Get(ctx, actx.SessionID)
		if err != nil || sess == nil {
			return "", nil
		}
		return sess.CompactMarkdown, nil

	default:
		return "", nil
	}
}

func contextRenderVars(actx *ActionContext, source, content string) map[string]interface{} {
	vars := map[string]interface{}{
		"artifacts":    artifactsOf(actx.State),
		"observations": actx.State.Observations,
		"state":        actx.State,
	}
	switch source {
	case SourcePreviousSessionSummary, SourceHandoff, SourceCompactHandoff:
		vars["summary"] = content
		vars["handoff"] = map[string]interface{}{"notes": content}
	case SourceArtifacts:
		vars["artifacts_list"] = content
	case SourceObservations:
		vars["observations_text"] = content
	case SourceWorkflowState:
		vars["workflow_state_text"] = content
	}
	return vars
}

// injectMessage implements inject_message: render `content` as a template
// and emit it. extra keys beyond `content` are exposed to the template.
func injectMessage(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	content, _ := inputs["content"].(string)
	if content == "" || actx.Templates == nil {
		return nil, nil
	}

	vars := map[string]interface{}{
		"variables": actx.State.Variables,
	}
	if actx.State != nil {
		vars["step_action_count"] = actx.State.StepActionCount
		vars["artifacts"] = artifactsOf(actx.State)
	}
	for k, v := range inputs {
		if k != "content" {
			vars[k] = v
		}
	}

	return Result{"inject_message": actx.Templates.Render(content, vars)}, nil
}

// restoreContext re-injects the parent session's summary_markdown verbatim
// (or through `template` if given) — used to resume an orchestrator step
// after a child agent completes.
func restoreContext(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Sessions == nil || actx.SessionID == "" {
		return nil, nil
	}
	sess, err := actx.Sessions.Get(ctx, actx.SessionID)
	if err != nil || sess == nil || sess.ParentSessionID == "" {
		return nil, nil
	}
	parent, err := actx.Sessions.Get(ctx, sess.ParentSessionID)
	if err != nil || parent == nil || parent.SummaryMarkdown == "" {
		return nil, nil
	}

	content := parent.SummaryMarkdown
	if template, _ := inputs["template"].(string); template != "" && actx.Templates != nil {
		content = actx.Templates.Render(template, map[string]interface{}{
			"summary": content,
			"handoff": map[string]interface{}{"notes": "restored summary"},
			"session": sess,
			"state":   actx.State,
		})
	}
	return Result{"inject_context": content}, nil
}

func artifactsOf(state *model.WorkflowState) map[string]string {
	if state == nil || state.Variables == nil {
		return nil
	}
	raw, ok := state.Variables[model.VarArtifacts]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}
