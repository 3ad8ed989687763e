// Package wsapi implements the WebSocket control plane of spec.md §4.14: a
// single /ws endpoint that upgrades a connection, authenticates it at
// handshake, and routes every subsequent JSON message to one of a handful
// of independent sub-services (tool calls, hook-event broadcast, chat,
// tmux/PTY attach, voice) keyed by its "type" field. Grounded on the
// teacher's internal/rpc (message envelope, dispatch-by-key, gorilla/websocket
// upgrade) and adapted from the JSON-RPC "method" field to the Python
// daemon's flatter "type"-keyed messages in
// original_source/src/gobby/servers/websocket/server.py.
package wsapi

import "encoding/json"

// MessageType is the closed set of "type" values server.go's dispatch
// table recognizes. Unrecognized values get an error reply, never a
// panic or a dropped connection.
type MessageType string

const (
	MsgToolCall       MessageType = "tool_call"
	MsgPing           MessageType = "ping"
	MsgSubscribe      MessageType = "subscribe"
	MsgUnsubscribe    MessageType = "unsubscribe"
	MsgChatMessage    MessageType = "chat_message"
	MsgStopChat       MessageType = "stop_chat"
	MsgClearChat      MessageType = "clear_chat"
	MsgDeleteChat     MessageType = "delete_chat"
	MsgTmuxList       MessageType = "tmux_list_sessions"
	MsgTmuxAttach     MessageType = "tmux_attach"
	MsgTmuxDetach     MessageType = "tmux_detach"
	MsgTmuxKill       MessageType = "tmux_kill_session"
	MsgTmuxResize     MessageType = "tmux_resize"
	MsgTerminalInput  MessageType = "terminal_input"
	MsgVoiceAudio     MessageType = "voice_audio"
	MsgVoiceModeToggle MessageType = "voice_mode_toggle"

	// Server -> client only.
	MsgConnectionEstablished MessageType = "connection_established"
	MsgError                 MessageType = "error"
	MsgHookEvent             MessageType = "hook_event"
	MsgToolResult            MessageType = "tool_result"
	MsgChatChunk             MessageType = "chat_chunk"
	MsgTmuxOutput             MessageType = "tmux_output"
)

// inbound is the envelope a client message decodes into. Fields beyond
// Type are handler-specific and read out of Raw with the typed getters
// below, mirroring the Python server's plain dict.get() access instead of
// a rigid per-type params struct.
type inbound struct {
	Type MessageType `json:"type"`
	Raw  map[string]any
}

func parseInbound(data []byte) (*inbound, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	t, _ := raw["type"].(string)
	return &inbound{Type: MessageType(t), Raw: raw}, nil
}

func strField(raw map[string]any, key string) string {
	v, _ := raw[key].(string)
	return v
}

func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func mapField(raw map[string]any, key string) map[string]any {
	v, _ := raw[key].(map[string]any)
	return v
}

// connectionEstablished is the welcome message sent immediately after a
// successful upgrade, naming the connection and any chat conversations
// already live on the server (they survive earlier disconnects).
type connectionEstablished struct {
	Type            MessageType `json:"type"`
	ClientID        string      `json:"client_id"`
	UserID          string      `json:"user_id,omitempty"`
	ConversationIDs []string    `json:"conversation_ids"`
}

// errorMessage is the uniform error reply: decode failures, unknown
// message types, and handler errors all take this shape rather than
// killing the connection.
type errorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func newError(msg string) errorMessage {
	return errorMessage{Type: MsgError, Message: msg}
}
