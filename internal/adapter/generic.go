package adapter

import (
	"context"
	"time"

	"github.com/gobby-dev/gobby/internal/event"
)

// GenericAdapter handles CLIs whose native hook payload already speaks the
// unified field names (snake_case tool_name/tool_input/tool_output, a
// top-level hook_event_name). Gemini, Codex, and Cursor all fit this
// shape today; a CLI that diverges gets promoted to its own adapter file
// the way Claude and Copilot were.
type GenericAdapter struct {
	source   string
	eventMap map[string]event.HookEventType
}

// NewGenericAdapter builds a GenericAdapter for source using the shared
// snake_case hook name map.
func NewGenericAdapter(source string) *GenericAdapter {
	return &GenericAdapter{source: source, eventMap: genericEventMap}
}

var genericEventMap = map[string]event.HookEventType{
	"session_start":   event.HookTypeSessionStart,
	"session_end":     event.HookTypeSessionEnd,
	"before_agent":    event.HookTypeBeforeAgent,
	"after_agent":     event.HookTypeAfterAgent,
	"before_tool":     event.HookTypeBeforeTool,
	"after_tool":      event.HookTypeAfterTool,
	"stop":            event.HookTypeStop,
	"pre_compact":     event.HookTypePreCompact,
	"notification":    event.HookTypeNotification,
	"subagent_start":  event.HookTypeSubagentStart,
	"subagent_stop":   event.HookTypeSubagentStop,
}

func (a *GenericAdapter) Source() string { return a.source }

func (a *GenericAdapter) TranslateToHookEvent(native map[string]any) (*event.HookEvent, error) {
	hookName := mapString(native, "hook_event_name")
	typ, ok := a.eventMap[hookName]
	if !ok {
		typ = event.HookTypeNotification
	}

	return &event.HookEvent{
		Type:           typ,
		Source:         a.source,
		ExternalID:     mapString(native, "session_id"),
		MachineID:      mapString(native, "machine_id"),
		Prompt:         mapString(native, "prompt"),
		ToolName:       mapString(native, "tool_name"),
		ToolInput:      native["tool_input"],
		ToolOutput:     native["tool_output"],
		TranscriptPath: mapString(native, "transcript_path"),
		CWD:            mapString(native, "cwd"),
		ReceivedAt:     time.Now(),
	}, nil
}

func (a *GenericAdapter) TranslateFromHookResponse(resp *event.HookResponse, nativeHookName string) map[string]any {
	out := map[string]any{"decision": string(resp.Decision)}
	if resp.Reason != "" {
		out["reason"] = resp.Reason
	}
	if resp.SystemMessage != "" {
		out["system_message"] = resp.SystemMessage
	}
	if resp.Context != "" {
		out["context"] = resp.Context
	}
	return out
}

func (a *GenericAdapter) HandleNative(ctx context.Context, handler Handler, native map[string]any) (map[string]any, error) {
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
