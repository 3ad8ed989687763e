package adapter

import (
	"context"
	"time"

	"github.com/gobby-dev/gobby/internal/event"
)

// ClaudeAdapter translates Claude Code's hook payloads. Claude already
// uses snake_case field names (tool_name, tool_input, tool_response) so
// translation is mostly about the hook_event_name -> HookEventType map and
// PostToolUse's nested tool_response shape, not field renaming.
type ClaudeAdapter struct{}

// NewClaudeAdapter constructs a ClaudeAdapter.
func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{}
}

func (a *ClaudeAdapter) Source() string { return SourceClaude }

// claudeEventMap maps Claude's PascalCase hook_event_name to the unified
// HookEventType. Unknown names fall back to HookTypeNotification.
var claudeEventMap = map[string]event.HookEventType{
	"SessionStart":     event.HookTypeSessionStart,
	"SessionEnd":       event.HookTypeSessionEnd,
	"UserPromptSubmit": event.HookTypeBeforeAgent,
	"PreToolUse":       event.HookTypeBeforeTool,
	"PostToolUse":      event.HookTypeAfterTool,
	"Stop":             event.HookTypeStop,
	"SubagentStop":     event.HookTypeSubagentStop,
	"SubagentStart":    event.HookTypeSubagentStart,
	"PreCompact":       event.HookTypePreCompact,
	"Notification":     event.HookTypeNotification,
}

func (a *ClaudeAdapter) TranslateToHookEvent(native map[string]any) (*event.HookEvent, error) {
	hookName := mapString(native, "hook_event_name")
	typ, ok := claudeEventMap[hookName]
	if !ok {
		typ = event.HookTypeNotification
	}

	toolOutput := native["tool_response"]
	if toolOutput == nil {
		toolOutput = native["tool_output"]
	}

	evt := &event.HookEvent{
		Type:           typ,
		Source:         SourceClaude,
		ExternalID:     mapString(native, "session_id"),
		Prompt:         mapString(native, "prompt"),
		ToolName:       mapString(native, "tool_name"),
		ToolInput:      native["tool_input"],
		ToolOutput:     toolOutput,
		TranscriptPath: mapString(native, "transcript_path"),
		CWD:            mapString(native, "cwd"),
		ReceivedAt:     time.Now(),
	}
	return evt, nil
}

// claudeContextHookNames is the set of hook_event_name values whose
// response accepts hookSpecificOutput.additionalContext.
var claudeContextHookNames = map[string]bool{
	"UserPromptSubmit": true,
	"PreToolUse":       true,
	"SessionStart":     true,
}

func (a *ClaudeAdapter) TranslateFromHookResponse(resp *event.HookResponse, nativeHookName string) map[string]any {
	out := map[string]any{}

	switch resp.Decision {
	case event.DecisionDeny, event.DecisionBlock:
		out["decision"] = "block"
	default:
		out["continue"] = true
	}
	if resp.Reason != "" {
		out["reason"] = resp.Reason
	}
	if resp.SystemMessage != "" {
		out["systemMessage"] = resp.SystemMessage
	}

	if resp.Context != "" && claudeContextHookNames[nativeHookName] {
		out["hookSpecificOutput"] = map[string]any{
			"hookEventName":     nativeHookName,
			"additionalContext": resp.Context,
		}
	}
	return out
}

func (a *ClaudeAdapter) HandleNative(ctx context.Context, handler Handler, native map[string]any) (map[string]any, error) {
	evt, err := a.TranslateToHookEvent(native)
	if err != nil {
		return nil, err
	}
	resp, err := handler.Handle(ctx, evt)
	if err != nil {
		return nil, err
	}
	return a.TranslateFromHookResponse(resp, mapString(native, "hook_event_name")), nil
}
