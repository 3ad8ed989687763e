package action

import (
	"context"
	"fmt"
	"strings"
)

// synthesizeTitle implements synthesize_title: ask the LLM for a concise
// session title from either the triggering prompt or the transcript, then
// persist it on the session. When dispatched with background=true (popped
// by Executor.Execute before this handler runs), its result is discarded by
// the caller — this handler still writes session.title itself so the
// background path has an observable effect despite the discarded return.
func synthesizeTitle(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.LLM == nil || actx.Sessions == nil || actx.SessionID == "" {
		return nil, nil
	}

	source := stringInput(inputs, "source")
	if source == "" {
		source = "prompt"
	}

	var basis string
	switch source {
	case "prompt":
		if actx.Event != nil {
			basis = actx.Event.Prompt
		}
	case "transcript":
		sess, err := actx.Sessions.Get(ctx, actx.SessionID)
		if err != nil || sess == nil || sess.JSONLPath == "" {
			return nil, nil
		}
		handoff, err := ParseTranscript(sess.JSONLPath)
		if err != nil {
			return nil, err
		}
		basis = handoff.InitialGoal
	default:
		return nil, fmt.Errorf("synthesize_title: unknown source %q", source)
	}

	if strings.TrimSpace(basis) == "" {
		return nil, nil
	}

	title, err := actx.LLM.Complete(ctx, "Summarize this as a concise session title (max 8 words):\n\n"+basis)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}

	sess, err := actx.Sessions.Get(ctx, actx.SessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	sess.Title = title
	if err := actx.Sessions.Update(ctx, sess); err != nil {
		return nil, err
	}

	return Result{"synthesize_title": title}, nil
}
