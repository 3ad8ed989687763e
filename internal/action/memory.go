package action

import "context"

// The memory_* action family proxies to a pluggable MemoryService, gated by
// a nil check so memory can be disabled entirely (matching spec.md §4.6's
// `memory.config.enabled` gate) without the workflow definitions that call
// these actions needing to know.

func memorySave(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	content := stringInput(inputs, "content")
	if content == "" {
		return nil, nil
	}
	projectID := projectIDOf(ctx, actx)
	if err := actx.Memory.Save(ctx, projectID, content); err != nil {
		return nil, err
	}
	return Result{"memory_save": true}, nil
}

func memoryRecallRelevant(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	query := stringInput(inputs, "query")
	limit := 5
	if l, ok := inputs["limit"].(int); ok && l > 0 {
		limit = l
	}
	projectID := projectIDOf(ctx, actx)
	items, err := actx.Memory.RecallRelevant(ctx, projectID, query, limit)
	if err != nil {
		return nil, err
	}
	return Result{"memory_recall_relevant": items}, nil
}

func memoryInjectProjectContext(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	projectID := projectIDOf(ctx, actx)
	text, err := actx.Memory.ProjectContext(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return Result{"inject_context": text}, nil
}

func memoryExtractFromSession(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil || actx.SessionID == "" {
		return nil, nil
	}
	extracted, err := actx.Memory.ExtractFromSession(ctx, actx.SessionID)
	if err != nil {
		return nil, err
	}
	return Result{"memory_extract_from_session": extracted}, nil
}

// memoryReviewGate blocks the event until a human approves pending
// extracted memories, surfaced the same way any other blocking action is:
// via a "decision": "block" result.
func memoryReviewGate(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	approved, _ := inputs["approved"].(bool)
	if approved {
		return Result{"memory_review_gate": "approved"}, nil
	}
	return Result{"decision": "block", "reason": "pending memory review"}, nil
}

func memorySyncImport(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	projectID := projectIDOf(ctx, actx)
	n, err := actx.Memory.SyncImport(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Result{"memory_sync_import": n}, nil
}

func memorySyncExport(ctx context.Context, actx *ActionContext, inputs map[string]interface{}) (Result, error) {
	if actx.Memory == nil {
		return nil, nil
	}
	projectID := projectIDOf(ctx, actx)
	n, err := actx.Memory.SyncExport(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Result{"memory_sync_export": n}, nil
}

func projectIDOf(ctx context.Context, actx *ActionContext) string {
	if actx.Sessions == nil || actx.SessionID == "" {
		return ""
	}
	sess, err := actx.Sessions.Get(ctx, actx.SessionID)
	if err != nil || sess == nil {
		return ""
	}
	return sess.ProjectID
}
