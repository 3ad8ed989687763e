package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gobby-dev/gobby/internal/mcpproxy"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Config wires every independent sub-service a Server composes, grounded
// on spec.md's Design Note: the Python daemon builds WebSocketServer out
// of six mixins via multiple inheritance; here each mixin becomes its own
// struct and Server holds one of each rather than embedding behavior
// through a type hierarchy.
type Config struct {
	Auth         *Authenticator
	Proxy        *mcpproxy.Proxy
	AgentSpawner AgentSpawner
	PTYProvider  PTYProvider
	VoiceEnabled bool
	Logger       *slog.Logger
}

// Server upgrades /ws connections and dispatches every subsequent JSON
// message by its "type" field to the sub-service that owns it, grounded
// on internal/rpc/server.go's upgrade-and-track pattern.
type Server struct {
	hub      *Hub
	auth     *Authenticator
	proxy    *mcpproxy.Proxy
	chat     *chatService
	tmux     *tmuxService
	voice    *voiceService
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewServer constructs a Server from cfg. Any of cfg's fields may be the
// zero value; the corresponding sub-service then responds with a
// "not configured" error instead of panicking.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := NewHub(logger)
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}
	return &Server{
		hub:   hub,
		auth:  auth,
		proxy: cfg.Proxy,
		chat:  newChatService(cfg.AgentSpawner, hub),
		tmux:  newTmuxService(cfg.PTYProvider, hub, logger),
		voice: newVoiceService(cfg.VoiceEnabled, hub),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Hub exposes the connection broadcaster for wiring into
// internal/hook.Manager.Broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP implements http.Handler, routing GET /ws to the WebSocket
// upgrade and GET /health to a liveness probe, mountable at any prefix by
// internal/daemon.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		s.handleHealth(w, r)
	case "/ws":
		s.handleUpgrade(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	status := http.StatusOK
	if closed {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"clients": s.hub.ClientCount()})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	token := bearerToken(r)
	userID, err := s.auth.Authenticate(token, r.RemoteAddr)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		} else {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	clientID := uuid.NewString()
	s.hub.register(conn, clientID, userID, r.RemoteAddr)
	s.logger.Debug("websocket client connected", "client_id", clientID, "user_id", userID, "remote", r.RemoteAddr)

	if err := s.hub.send(conn, connectionEstablished{
		Type:            MsgConnectionEstablished,
		ClientID:        clientID,
		UserID:          userID,
		ConversationIDs: s.hub.conversationIDs(),
	}); err != nil {
		s.logger.Debug("connection_established send failed", "error", err)
	}

	go s.readLoop(conn, clientID)
}

func bearerToken(r *http.Request) string {
	if tok := r.Header.Get("X-Auth-Token"); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// readLoop owns one connection's lifetime: ping/pong keepalive, message
// dispatch, and guaranteed cleanup on exit, grounded on
// internal/rpc/server.go's handleConnection and the Python server's
// try/except-per-message loop (one bad message never kills the
// connection).
func (s *Server) readLoop(conn *websocket.Conn, clientID string) {
	defer func() {
		s.tmux.cleanupClient(conn)
		s.hub.unregister(conn)
		_ = conn.Close()
		s.logger.Debug("websocket client disconnected", "client_id", clientID)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(conn, stopPing)

	ctx := context.Background()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "client_id", clientID, "error", err)
			}
			return
		}

		msg, parseErr := parseInbound(data)
		if parseErr != nil {
			if sendErr := s.hub.send(conn, newError("invalid JSON format")); sendErr != nil {
				return
			}
			continue
		}
		if dispatchErr := s.dispatch(ctx, conn, msg); dispatchErr != nil {
			s.logger.Debug("message handling error", "client_id", clientID, "type", msg.Type, "error", dispatchErr)
			_ = s.hub.send(conn, newError("internal server error"))
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// dispatch routes one decoded message to its sub-service, mirroring the
// Python server's lazily-built _dispatch_table keyed by "type".
func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, msg *inbound) error {
	switch msg.Type {
	case MsgPing:
		return s.hub.send(conn, map[string]any{"type": "pong"})

	case MsgToolCall:
		return s.handleToolCall(ctx, conn, msg.Raw)

	case MsgSubscribe, MsgUnsubscribe:
		// Broadcast is unconditional (see Hub.Broadcast); subscription
		// state is purely advisory and left to the client to act on, so
		// these are acknowledged with no server-side bookkeeping.
		return s.hub.send(conn, map[string]any{"type": msg.Type})

	case MsgChatMessage:
		return s.chat.handleMessage(ctx, conn, msg.Raw)
	case MsgStopChat:
		s.chat.handleStop(msg.Raw)
		return nil
	case MsgClearChat:
		s.chat.handleClear(msg.Raw)
		return nil
	case MsgDeleteChat:
		s.chat.handleDelete(msg.Raw)
		return nil

	case MsgTmuxList:
		return s.tmux.handleList(conn, msg.Raw)
	case MsgTmuxAttach:
		return s.tmux.handleAttach(conn, msg.Raw)
	case MsgTmuxDetach:
		return s.tmux.handleDetach(conn, msg.Raw)
	case MsgTmuxKill:
		return s.tmux.handleKill(conn, msg.Raw)
	case MsgTmuxResize:
		return s.tmux.handleResize(conn, msg.Raw)
	case MsgTerminalInput:
		return s.tmux.handleInput(conn, msg.Raw)

	case MsgVoiceAudio:
		return s.voice.handleAudio(conn, msg.Raw)
	case MsgVoiceModeToggle:
		return s.voice.handleModeToggle(conn, msg.Raw)

	default:
		return s.hub.send(conn, newError("unknown message type: "+string(msg.Type)))
	}
}

func (s *Server) handleToolCall(ctx context.Context, conn *websocket.Conn, raw map[string]any) error {
	if s.proxy == nil {
		return s.hub.send(conn, newError("mcp proxy is not configured"))
	}
	projectID := strField(raw, "project_id")
	server := strField(raw, "server")
	tool := strField(raw, "tool")
	args := mapField(raw, "arguments")
	if server == "" || tool == "" {
		return s.hub.send(conn, newError("tool_call requires server and tool"))
	}

	result, err := s.proxy.CallTool(ctx, projectID, server, tool, args)
	requestID := strField(raw, "request_id")
	if err != nil {
		return s.hub.send(conn, map[string]any{
			"type":       MsgError,
			"request_id": requestID,
			"message":    err.Error(),
		})
	}
	return s.hub.send(conn, map[string]any{
		"type":       MsgToolResult,
		"request_id": requestID,
		"result":     result,
	})
}

// Shutdown closes every tracked connection and stops background
// goroutines, called during daemon shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.auth.Close()

	s.hub.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.hub.conns))
	for c := range s.hub.conns {
		conns = append(conns, c)
	}
	s.hub.mu.RUnlock()

	for _, conn := range conns {
		deadline := time.Now().Add(2 * time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.Close()
	}
	return nil
}
