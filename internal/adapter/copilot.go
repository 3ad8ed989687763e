package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobby-dev/gobby/internal/event"
)

// CopilotAdapter translates GitHub Copilot CLI's camelCase hook payloads.
// Differences from Claude: camelCase hook names (preToolUse), toolName
// instead of tool_name, toolArgs instead of tool_input, tool output
// nested under toolResult.textResultForLlm, and a permissionDecision
// response field instead of decision/continue.
type CopilotAdapter struct{}

// NewCopilotAdapter constructs a CopilotAdapter.
func NewCopilotAdapter() *CopilotAdapter {
	return &CopilotAdapter{}
}

func (a *CopilotAdapter) Source() string { return SourceCopilot }

var copilotEventMap = map[string]event.HookEventType{
	"sessionStart":        event.HookTypeSessionStart,
	"sessionEnd":          event.HookTypeSessionEnd,
	"userPromptSubmitted": event.HookTypeBeforeAgent,
	"preToolUse":          event.HookTypeBeforeTool,
	"postToolUse":         event.HookTypeAfterTool,
	"errorOccurred":       event.HookTypeNotification,
	"stop":                event.HookTypeStop,
	"preCompact":          event.HookTypePreCompact,
	"notification":        event.HookTypeNotification,
}

var copilotHookEventNameMap = map[string]string{
	"sessionStart":        "SessionStart",
	"sessionEnd":          "SessionEnd",
	"userPromptSubmitted": "UserPromptSubmitted",
	"stop":                "Stop",
	"preToolUse":          "PreToolUse",
	"postToolUse":         "PostToolUse",
	"preCompact":          "PreCompact",
	"notification":        "Notification",
	"errorOccurred":       "Notification",
}

func (a *CopilotAdapter) TranslateToHookEvent(native map[string]any) (*event.HookEvent, error) {
	hookType := mapString(native, "hook_type")
	inputData := mapGet(native, "input_data")

	typ, ok := copilotEventMap[hookType]
	if !ok {
		typ = event.HookTypeNotification
	}

	toolResult := mapGet(inputData, "toolResult")
	isError := false
	if rt, ok := toolResult["resultType"].(string); ok {
		isError = rt == "error"
	}

	evt := &event.HookEvent{
		Type:       typ,
		Source:     SourceCopilot,
		ExternalID: mapString(inputData, "session_id"),
		MachineID:  mapString(inputData, "machine_id"),
		CWD:        mapString(inputData, "cwd"),
		ReceivedAt: time.Now(),
	}
	if isError {
		evt.SetMeta("is_failure", true)
	}

	// toolName -> tool_name
	if toolName, ok := inputData["toolName"].(string); ok {
		evt.ToolName = toolName
	} else if toolName, ok := inputData["tool_name"].(string); ok {
		evt.ToolName = toolName
	}

	// toolArgs -> tool_input
	if toolArgs, ok := inputData["toolArgs"]; ok {
		evt.ToolInput = toolArgs
	} else if toolInput, ok := inputData["tool_input"]; ok {
		evt.ToolInput = toolInput
	}

	// toolResult.textResultForLlm -> tool_output
	if len(toolResult) > 0 {
		if text, ok := toolResult["textResultForLlm"].(string); ok && text != "" {
			evt.ToolOutput = text
		} else if evt.ToolOutput == nil {
			evt.ToolOutput = toolResult
		}
	}

	// Extract MCP info from nested toolArgs for call_tool calls.
	if evt.ToolName == "call_tool" || evt.ToolName == "mcp__gobby__call_tool" {
		if args, ok := evt.ToolInput.(map[string]any); ok {
			evt.SetMeta("mcp_server", args["server_name"])
			evt.SetMeta("mcp_tool", args["tool_name"])
		}
	}

	return evt, nil
}

var copilotContextHookNames = map[string]bool{
	"PreToolUse":           true,
	"UserPromptSubmitted": true,
	"PostToolUse":          true,
	"SessionStart":         true,
}

func (a *CopilotAdapter) TranslateFromHookResponse(resp *event.HookResponse, nativeHookName string) map[string]any {
	permissionDecision := "allow"
	if resp.Decision == event.DecisionDeny || resp.Decision == event.DecisionBlock {
		permissionDecision = "deny"
	}

	result := map[string]any{"permissionDecision": permissionDecision}
	if resp.Reason != "" {
		result["permissionDecisionReason"] = resp.Reason
	}
	if resp.SystemMessage != "" {
		result["systemMessage"] = resp.SystemMessage
	}

	hookEventName, ok := copilotHookEventNameMap[nativeHookName]
	if !ok {
		hookEventName = "Unknown"
	}

	var contextParts []string
	if resp.Context != "" {
		contextParts = append(contextParts, resp.Context)
	}

	if resp.Metadata != nil {
		sessionID, _ := resp.Metadata["session_id"].(string)
		sessionRef, _ := resp.Metadata["session_ref"].(string)
		externalID, _ := resp.Metadata["external_id"].(string)
		isFirstHook, _ := resp.Metadata[event.MetaFirstHookForSession].(bool)

		if sessionID != "" {
			if isFirstHook {
				var lines []string
				if sessionRef != "" {
					lines = append(lines, fmt.Sprintf("Gobby Session ID: %s (or %s)", sessionRef, sessionID))
				} else {
					lines = append(lines, fmt.Sprintf("Gobby Session ID: %s", sessionID))
				}
				if externalID != "" {
					lines = append(lines, fmt.Sprintf("CLI-Specific Session ID (external_id): %s", externalID))
				}
				if v, ok := resp.Metadata["parent_session_id"].(string); ok && v != "" {
					lines = append(lines, fmt.Sprintf("parent_session_id: %s", v))
				}
				if v, ok := resp.Metadata["machine_id"].(string); ok && v != "" {
					lines = append(lines, fmt.Sprintf("machine_id: %s", v))
				}
				if v, ok := resp.Metadata["project_id"].(string); ok && v != "" {
					lines = append(lines, fmt.Sprintf("project_id: %s", v))
				}
				if v, ok := resp.Metadata["terminal_term_program"].(string); ok && v != "" {
					lines = append(lines, fmt.Sprintf("terminal: %s", v))
				}
				if v, ok := resp.Metadata["terminal_parent_pid"]; ok {
					lines = append(lines, fmt.Sprintf("parent_pid: %v", v))
				}
				contextParts = append(contextParts, strings.Join(lines, "\n"))
			} else if sessionRef != "" {
				contextParts = append(contextParts, fmt.Sprintf("Gobby Session ID: %s", sessionRef))
			}
		}
	}

	if len(contextParts) > 0 && copilotContextHookNames[hookEventName] {
		result["hookSpecificOutput"] = map[string]any{
			"hookEventName":     hookEventName,
			"additionalContext": strings.Join(contextParts, "\n\n"),
		}
	}

	return result
}

func (a *CopilotAdapter) HandleNative(ctx context.Context, handler Handler, native map[string]any) (map[string]any, error) {
	evt, err := a.TranslateToHookEvent(native)
	if err != nil {
		return nil, err
	}
	resp, err := handler.Handle(ctx, evt)
	if err != nil {
		return nil, err
	}
	hookType := mapString(native, "hook_type")
	return a.TranslateFromHookResponse(resp, hookType), nil
}
