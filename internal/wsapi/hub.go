package wsapi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gobby-dev/gobby/internal/event"
)

// clientInfo mirrors the Python server's per-connection metadata dict.
type clientInfo struct {
	id          string
	userID      string
	connectedAt time.Time
	remoteAddr  string
}

// ClientInfo is the exported, JSON-friendly view of a connected client,
// returned by Hub.Clients for the HTTP control plane's status endpoints.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	RemoteAddr  string    `json:"remote_address"`
}

// Hub tracks every connected WebSocket client and the set of chat
// conversations that survive across disconnects, and fans hook events out
// to all of them. It implements internal/hook.Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*websocket.Conn]*clientInfo
	writeMu map[*websocket.Conn]*sync.Mutex

	chatMu       sync.Mutex
	conversation map[string]bool // conversation ids with at least one message sent

	logger *slog.Logger
}

// NewHub constructs an empty Hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:        make(map[*websocket.Conn]*clientInfo),
		writeMu:      make(map[*websocket.Conn]*sync.Mutex),
		conversation: make(map[string]bool),
		logger:       logger,
	}
}

func (h *Hub) register(conn *websocket.Conn, id, userID, remoteAddr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = &clientInfo{id: id, userID: userID, connectedAt: time.Now(), remoteAddr: remoteAddr}
	h.writeMu[conn] = &sync.Mutex{}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
	delete(h.writeMu, conn)
}

// conversationIDs lists conversations with live history, sent in the
// connection_established welcome message so a reattaching client knows
// what survived its disconnect.
func (h *Hub) conversationIDs() []string {
	h.chatMu.Lock()
	defer h.chatMu.Unlock()
	ids := make([]string, 0, len(h.conversation))
	for id := range h.conversation {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) markConversation(id string) {
	h.chatMu.Lock()
	defer h.chatMu.Unlock()
	h.conversation[id] = true
}

func (h *Hub) dropConversation(id string) {
	h.chatMu.Lock()
	defer h.chatMu.Unlock()
	delete(h.conversation, id)
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Clients returns a snapshot of every connected client's metadata.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ClientInfo, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, ClientInfo{ID: c.id, UserID: c.userID, ConnectedAt: c.connectedAt, RemoteAddr: c.remoteAddr})
	}
	return out
}

// send writes v as JSON to one connection, serialized per-connection
// since gorilla/websocket forbids concurrent writers on the same conn.
func (h *Hub) send(conn *websocket.Conn, v any) error {
	h.mu.RLock()
	mu := h.writeMu[conn]
	h.mu.RUnlock()
	if mu == nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteJSON(v)
}

// broadcastJSON writes v to every connected client, logging (not failing)
// on a write error so one stuck client never blocks the others.
func (h *Hub) broadcastJSON(v any) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := h.send(c, v); err != nil {
			h.logger.Debug("wsapi broadcast write failed", "error", err)
		}
	}
}

// hookBroadcast is the wire shape a HookEvent/HookResponse pair is
// broadcast as, matching the client-facing naming elsewhere in this
// package rather than the internal event.HookEvent json tags verbatim.
type hookBroadcast struct {
	Type     MessageType        `json:"type"`
	Event    *event.HookEvent    `json:"event"`
	Response *event.HookResponse `json:"response"`
}

// Broadcast implements internal/hook.Broadcaster: every handled hook
// event is pushed to every connected WebSocket client, regardless of
// subscription filters (subscribe/unsubscribe narrows what a client acts
// on client-side; the server fans out unconditionally, matching the
// Python server's single broadcast() call with no per-client filtering).
func (h *Hub) Broadcast(evt *event.HookEvent, resp *event.HookResponse) {
	h.broadcastJSON(hookBroadcast{Type: MsgHookEvent, Event: evt, Response: resp})
}
