package wsapi

import (
	"encoding/base64"
	"io"
	"log/slog"
	"sync"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
)

// PTYProvider exposes the embedded PTY masters internal/agentrunner.EmbeddedStrategy
// retains per running agent, letting a WebSocket client attach to one as a
// terminal pane. This is the Go analogue of the Python server's tmux
// session bridge, backed by a real pty instead of a tmux subprocess --
// there is no tmux library anywhere in this tree, only the PTY attachment
// pattern internal/agentrunner already uses to embed an agent's terminal.
type PTYProvider interface {
	Master(runID string) (*pty.File, bool)
	RunIDs() []string
}

// tmuxService bridges client tmux_* messages to a PTYProvider's retained
// master file descriptors. "Sessions" here are agent run ids, not tmux
// sessions.
type tmuxService struct {
	provider PTYProvider
	hub      *Hub
	logger   *slog.Logger

	mu       sync.Mutex
	attached map[*websocket.Conn]map[string]chan struct{} // conn -> runID -> stop
}

func newTmuxService(provider PTYProvider, hub *Hub, logger *slog.Logger) *tmuxService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tmuxService{
		provider: provider,
		hub:      hub,
		logger:   logger,
		attached: make(map[*websocket.Conn]map[string]chan struct{}),
	}
}

func (t *tmuxService) handleList(conn *websocket.Conn, raw map[string]any) error {
	if t.provider == nil {
		return t.hub.send(conn, map[string]any{"type": MsgTmuxOutput, "sessions": []string{}})
	}
	return t.hub.send(conn, map[string]any{"type": MsgTmuxOutput, "sessions": t.provider.RunIDs()})
}

func (t *tmuxService) handleAttach(conn *websocket.Conn, raw map[string]any) error {
	runID := strField(raw, "run_id")
	if runID == "" {
		return t.hub.send(conn, newError("tmux_attach requires run_id"))
	}
	if t.provider == nil {
		return t.hub.send(conn, newError("tmux bridge is not configured"))
	}
	master, ok := t.provider.Master(runID)
	if !ok {
		return t.hub.send(conn, newError("no embedded session for run_id "+runID))
	}

	stop := make(chan struct{})
	t.mu.Lock()
	if t.attached[conn] == nil {
		t.attached[conn] = make(map[string]chan struct{})
	}
	if prior, ok := t.attached[conn][runID]; ok {
		close(prior)
	}
	t.attached[conn][runID] = stop
	t.mu.Unlock()

	go t.pump(conn, runID, master, stop)
	return nil
}

// pump copies PTY output to the client as base64-encoded tmux_output
// messages until the master hits EOF or the caller detaches.
func (t *tmuxService) pump(conn *websocket.Conn, runID string, master *pty.File, stop chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := master.Read(buf)
		if n > 0 {
			msg := map[string]any{
				"type":   MsgTmuxOutput,
				"run_id": runID,
				"data":   base64.StdEncoding.EncodeToString(buf[:n]),
			}
			if sendErr := t.hub.send(conn, msg); sendErr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Debug("tmux pty read failed", "run_id", runID, "error", err)
			}
			return
		}
	}
}

func (t *tmuxService) handleDetach(conn *websocket.Conn, raw map[string]any) error {
	runID := strField(raw, "run_id")
	t.mu.Lock()
	if m, ok := t.attached[conn]; ok {
		if stop, ok := m[runID]; ok {
			close(stop)
			delete(m, runID)
		}
	}
	t.mu.Unlock()
	return nil
}

func (t *tmuxService) handleInput(conn *websocket.Conn, raw map[string]any) error {
	runID := strField(raw, "run_id")
	data := strField(raw, "data")
	if t.provider == nil {
		return nil
	}
	master, ok := t.provider.Master(runID)
	if !ok {
		return t.hub.send(conn, newError("no embedded session for run_id "+runID))
	}
	_, err := master.WriteString(data)
	return err
}

// handleResize applies a terminal resize to the PTY. Closing the pty on
// kill (rather than signaling the process directly) relies on the kernel
// delivering SIGHUP to the foreground process group, the same mechanism a
// real terminal emulator uses when its window closes.
func (t *tmuxService) handleResize(conn *websocket.Conn, raw map[string]any) error {
	runID := strField(raw, "run_id")
	cols, rows := intField(raw, "cols"), intField(raw, "rows")
	if t.provider == nil || cols <= 0 || rows <= 0 {
		return nil
	}
	master, ok := t.provider.Master(runID)
	if !ok {
		return nil
	}
	return pty.Setsize(master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (t *tmuxService) handleKill(conn *websocket.Conn, raw map[string]any) error {
	runID := strField(raw, "run_id")
	if t.provider == nil {
		return nil
	}
	master, ok := t.provider.Master(runID)
	if !ok {
		return nil
	}
	return master.Close()
}

func (t *tmuxService) cleanupClient(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, stop := range t.attached[conn] {
		close(stop)
	}
	delete(t.attached, conn)
}
