package agentrunner

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/creack/pty"

	"github.com/gobby-dev/gobby/internal/lifecycle"
)

// commandFor composes the CLI invocation for a spawned agent: the
// provider binary, the agent/task identifying flags, and the prompt.
func commandFor(run *PreparedRun) (string, []string) {
	binary := run.Req.Provider
	if binary == "" {
		binary = "claude"
	}
	args := []string{"--agent", run.Req.Agent}
	if run.Req.Task != "" {
		args = append(args, "--task", run.Req.Task)
	}
	if run.Req.Prompt != "" {
		args = append(args, "--prompt", run.Req.Prompt)
	}
	dir := run.Req.RepoPath
	if run.Isolation != nil {
		dir = run.Isolation.Path
	}
	if dir != "" {
		args = append(args, "--cwd", dir)
	}
	return binary, args
}

// HeadlessStrategy spawns the agent as a background subprocess with stdio
// redirected to log files, grounded on internal/lifecycle.Spawner's
// SpawnDetachedWithFiles.
type HeadlessStrategy struct {
	Spawner *lifecycle.Spawner
	LogDir  string
}

// Start implements Strategy.
func (h *HeadlessStrategy) Start(ctx context.Context, run *PreparedRun) (int, error) {
	spawner := h.Spawner
	if spawner == nil {
		spawner = lifecycle.NewSpawner()
	}
	binary, args := commandFor(run)
	stdout := filepath.Join(h.LogDir, run.RunID+".stdout.log")
	stderr := filepath.Join(h.LogDir, run.RunID+".stderr.log")
	return spawner.SpawnDetachedWithFiles(binary, args, stdout, stderr)
}

// TerminalStrategy opens a detached terminal multiplexer window running
// the composed CLI command, so a user can attach and watch the session
// live. TmuxBinary defaults to "tmux".
type TerminalStrategy struct {
	Spawner     *lifecycle.Spawner
	TmuxBinary  string
	LogDir      string
}

// Start implements Strategy.
func (t *TerminalStrategy) Start(ctx context.Context, run *PreparedRun) (int, error) {
	spawner := t.Spawner
	if spawner == nil {
		spawner = lifecycle.NewSpawner()
	}
	tmux := t.TmuxBinary
	if tmux == "" {
		tmux = "tmux"
	}
	binary, cmdArgs := commandFor(run)
	shellCmd := fmt.Sprintf("%s %s", binary, shellJoin(cmdArgs))
	args := []string{"new-session", "-d", "-s", "gobby-" + run.RunID, shellCmd}
	log := filepath.Join(t.LogDir, run.RunID+".log")
	return spawner.SpawnDetached(tmux, args, log)
}

func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%q", a)
	}
	return out
}

// EmbeddedStrategy attaches the agent to a pseudo-terminal, retaining the
// master file descriptor for the daemon to bridge I/O over (e.g. a
// WebSocket terminal pane), grounded on the teacher pack's PTY-backed
// process attachment pattern.
type EmbeddedStrategy struct {
	mu      sync.Mutex
	masters map[string]*pty.File
}

// NewEmbeddedStrategy constructs an empty EmbeddedStrategy.
func NewEmbeddedStrategy() *EmbeddedStrategy {
	return &EmbeddedStrategy{masters: make(map[string]*pty.File)}
}

// Start implements Strategy.
func (e *EmbeddedStrategy) Start(ctx context.Context, run *PreparedRun) (int, error) {
	binary, args := commandFor(run)
	cmd := exec.CommandContext(ctx, binary, args...)
	if run.Isolation != nil {
		cmd.Dir = run.Isolation.Path
	} else {
		cmd.Dir = run.Req.RepoPath
	}

	master, err := pty.Start(cmd)
	if err != nil {
		return 0, fmt.Errorf("starting pty: %w", err)
	}

	e.mu.Lock()
	e.masters[run.RunID] = master
	e.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		e.mu.Lock()
		delete(e.masters, run.RunID)
		e.mu.Unlock()
		_ = master.Close()
	}()

	return cmd.Process.Pid, nil
}

// Master returns the retained master fd for runID, for I/O bridging.
func (e *EmbeddedStrategy) Master(runID string) (*pty.File, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.masters[runID]
	return m, ok
}

// RunIDs lists every run currently attached to a live PTY master, for
// internal/wsapi's tmux_list_sessions handler.
func (e *EmbeddedStrategy) RunIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.masters))
	for id := range e.masters {
		ids = append(ids, id)
	}
	return ids
}
