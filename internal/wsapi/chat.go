package wsapi

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gobby-dev/gobby/internal/action"
)

// AgentSpawner is the subset of internal/agentrunner.Runner (reached via
// action.AgentSpawner) chat messages are forwarded to: every chat_message
// spawns an agent run scoped to the conversation as its session id.
type AgentSpawner interface {
	Spawn(ctx context.Context, req action.SpawnRequest) (runID string, err error)
}

// chatService relays chat_message/stop_chat/clear_chat/delete_chat to an
// AgentSpawner, tracking one active run per conversation so stop_chat can
// cancel it. Adapted from the Python server's persistent _chat_sessions
// map (keyed by conversation_id, surviving client disconnects) and its
// _active_chat_tasks cancellation tracking; the ChatSession object itself
// wasn't part of this retrieval, so only the lifecycle visible from
// server.py's dispatch table is reproduced, backed by agent spawning
// instead of its unseen internals.
type chatService struct {
	spawner AgentSpawner
	hub     *Hub

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	history map[string][]chatTurn
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newChatService(spawner AgentSpawner, hub *Hub) *chatService {
	return &chatService{
		spawner: spawner,
		hub:     hub,
		active:  make(map[string]context.CancelFunc),
		history: make(map[string][]chatTurn),
	}
}

func (c *chatService) handleMessage(ctx context.Context, conn *websocket.Conn, raw map[string]any) error {
	conversationID := strField(raw, "conversation_id")
	content := strField(raw, "content")
	if conversationID == "" || content == "" {
		return c.hub.send(conn, newError("chat_message requires conversation_id and content"))
	}
	c.hub.markConversation(conversationID)

	c.mu.Lock()
	c.history[conversationID] = append(c.history[conversationID], chatTurn{Role: "user", Content: content})
	if prior, ok := c.active[conversationID]; ok {
		prior()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.active[conversationID] = cancel
	c.mu.Unlock()

	if c.spawner == nil {
		return c.hub.send(conn, newError("chat is not configured: no agent spawner wired"))
	}

	runID, err := c.spawner.Spawn(runCtx, action.SpawnRequest{
		Prompt:    content,
		SessionID: conversationID,
	})
	if err != nil {
		return c.hub.send(conn, newError("spawning chat agent: "+err.Error()))
	}
	return c.hub.send(conn, map[string]any{
		"type":            MsgChatChunk,
		"conversation_id": conversationID,
		"run_id":          runID,
	})
}

func (c *chatService) handleStop(raw map[string]any) {
	conversationID := strField(raw, "conversation_id")
	c.mu.Lock()
	cancel, ok := c.active[conversationID]
	delete(c.active, conversationID)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *chatService) handleClear(raw map[string]any) {
	conversationID := strField(raw, "conversation_id")
	c.mu.Lock()
	delete(c.history, conversationID)
	c.mu.Unlock()
}

// handleDelete removes a conversation permanently, including from the
// hub's reconnect-survival tracking -- the one chat action the original
// treats as destructive rather than just resetting visible history.
func (c *chatService) handleDelete(raw map[string]any) {
	conversationID := strField(raw, "conversation_id")
	c.mu.Lock()
	delete(c.history, conversationID)
	if cancel, ok := c.active[conversationID]; ok {
		cancel()
	}
	delete(c.active, conversationID)
	c.mu.Unlock()
	c.hub.dropConversation(conversationID)
}
