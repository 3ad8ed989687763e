// Package daemon is the process supervisor that wires every control-plane
// component spec.md describes into one running process: storage, the
// session/task/project/workflow-state managers, the prompt loader, the
// memory service, the action executor and agent runner, the hook manager
// and adapter registry, the pipeline engine, the MCP proxy, the cron
// scheduler, telemetry, and the two listeners (REST over HTTP, control
// chat/voice/tmux over WebSocket) that expose all of it, grounded on the
// teacher's internal/daemon.Daemon/New/Start/Shutdown but simplified for
// spec.md's single-process, non-distributed deployment model: no unix
// socket, no leader election, no remote artifact fetcher.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gobby-dev/gobby/internal/action"
	"github.com/gobby-dev/gobby/internal/adapter"
	"github.com/gobby-dev/gobby/internal/agentrunner"
	"github.com/gobby-dev/gobby/internal/config"
	"github.com/gobby-dev/gobby/internal/event"
	"github.com/gobby-dev/gobby/internal/fileapi"
	"github.com/gobby-dev/gobby/internal/gitutils"
	"github.com/gobby-dev/gobby/internal/hook"
	"github.com/gobby-dev/gobby/internal/httpapi"
	"github.com/gobby-dev/gobby/internal/lifecycle"
	"github.com/gobby-dev/gobby/internal/mcpproxy"
	"github.com/gobby-dev/gobby/internal/memory"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/pipeline"
	"github.com/gobby-dev/gobby/internal/project"
	"github.com/gobby-dev/gobby/internal/promptloader"
	"github.com/gobby-dev/gobby/internal/registry"
	"github.com/gobby-dev/gobby/internal/scheduler"
	"github.com/gobby-dev/gobby/internal/session"
	"github.com/gobby-dev/gobby/internal/storage"
	"github.com/gobby-dev/gobby/internal/task"
	"github.com/gobby-dev/gobby/internal/telemetry"
	"github.com/gobby-dev/gobby/internal/workflowdef"
	"github.com/gobby-dev/gobby/internal/workflowstate"
	"github.com/gobby-dev/gobby/internal/wsapi"
)

// registryCleanupInterval bounds how often the daemon sweeps the agent
// registry for entries whose OS process died without going through
// Runner.Remove, and for entries abandoned past staleMaxAge.
const registryCleanupInterval = 30 * time.Second

// staleMaxAge removes a running-agent entry that has outlived any
// plausible agent session, guarding against a registry leak if a process
// death is ever missed by the PID sweep.
const staleMaxAge = 72 * time.Hour

// Options carries build metadata the daemon reports over /v1/version.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon owns every long-lived component and the two listeners exposing
// them. Construct with New, then call Start; Shutdown tears everything
// back down in roughly reverse order.
type Daemon struct {
	cfg  *config.Config
	opts Options

	logger *slog.Logger

	store     *storage.Store
	registry  *registry.Registry
	telemetry *telemetry.Provider

	promptLoader *promptloader.Loader
	scheduler    *scheduler.Scheduler

	httpServer   *http.Server
	wsServer     *wsapi.Server
	wsHTTPServer *http.Server

	pidFile string

	mu          sync.Mutex
	started     bool
	stopCleanup chan struct{}
}

// New builds every collaborator and wires them into an HTTP router and a
// WebSocket server, but starts nothing — Start does that. An error here
// means the daemon is misconfigured (bad database path, broken workflow
// definitions) and the process should not attempt to run.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := newLogger(cfg)

	store, err := storage.Open(storage.Config{Path: cfg.Database.Path, WAL: cfg.Database.WAL})
	if err != nil {
		return nil, fmt.Errorf("daemon: open storage: %w", err)
	}

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: init telemetry: %w", err)
	}

	reg := registry.New()

	sessions := session.New(store)
	tasks := task.New(store, gitutils.New(""))
	projects := project.New(store)
	states := workflowstate.New(store)

	dataDir := filepath.Dir(cfg.Database.Path)

	prompts := promptloader.New(store, promptloader.Dirs{
		Bundled: cfg.Workflows.Prompts,
		User:    filepath.Join(dataDir, "prompts", "user"),
	}, logger)

	syncDir := filepath.Join(dataDir, "memories")
	memSvc := memory.New(store, sessions, action.ParseTranscript, func(projectID string) string {
		return filepath.Join(syncDir, projectID+".md")
	}, logger)

	defLoader := workflowdef.NewDirLoader(cfg.Workflows.Dir)
	pipelineLoader := pipeline.NewDirLoader(cfg.Workflows.Pipelines)
	shellRunner := pipeline.ShellRunner{}
	pipelineWebhooks := pipeline.NewWebhookSender(http.DefaultClient, logger)
	pipelineEngine := pipeline.New(store, pipelineLoader, shellRunner, nil, pipelineWebhooks, logger)

	worktreeRoot := filepath.Join(dataDir, "worktrees")
	logDir := filepath.Join(dataDir, "logs")
	runner := agentrunner.New(sessions, states, reg, logger)
	runner.Isolation = agentrunner.NewGitIsolator(worktreeRoot)
	runner.Headless = &agentrunner.HeadlessStrategy{LogDir: logDir}
	runner.Terminal = &agentrunner.TerminalStrategy{LogDir: logDir}
	runner.Embedded = agentrunner.NewEmbeddedStrategy()
	runner.MaxDepth = cfg.Workflows.MaxAgentDepth
	agentSpawner := agentrunner.AsActionSpawner(runner)

	actions := action.New()
	hookMgr := hook.New(sessions, states, defLoader, actions, logger)
	hookMgr.Projects = projects
	hookMgr.Prompts = prompts
	hookMgr.Registry = reg
	hookMgr.ActionCtx = func(sessionID string, ws *model.WorkflowState, evt *event.HookEvent) *action.ActionContext {
		return &action.ActionContext{
			SessionID: sessionID,
			State:     ws,
			Event:     evt,
			Sessions:  sessions,
			Templates: hookMgr.Templates,
			Evaluator: hookMgr.Evaluator,
			Memory:    memSvc,
			Agents:    agentSpawner,
			Pipeline:  pipelineEngine,
		}
	}

	adapters := adapter.NewRegistry()

	mcpProxy := mcpproxy.New(store, store, logger)
	mcpHandler := mcpproxy.NewHandler(mcpProxy, store)

	filesRouter := fileapi.New(projects, logger)

	httpCfg := httpapi.Config{
		Version: opts.Version,
		Hooks:   &httpapi.HooksHandler{Adapters: adapters, Handler: hookMgr, Logger: logger},
		Sessions: &httpapi.SessionsHandler{Sessions: sessions, Logger: logger},
		Tasks:    &httpapi.TasksHandler{Tasks: tasks, Logger: logger},
		Pipelines: &httpapi.PipelinesHandler{Engine: pipelineEngine, Store: store, Logger: logger},
		Memories: &httpapi.MemoriesHandler{Memory: memSvc, Logger: logger},
		Agents:   &httpapi.AgentsHandler{Registry: reg, Logger: logger},
		Files:    filesRouter,
		MCP:      mcpHandler,
		Metrics:  tel.MetricsHandler(),
	}
	router := httpapi.NewRouter(httpCfg, logger)
	httpServer := httpapi.NewServer(cfg.HTTP.Addr, router)

	var wsAuth *wsapi.Authenticator
	if cfg.Auth.Enabled {
		wsAuth = wsapi.NewAuthenticator(cfg.Auth.JWTSigningKey)
	}
	wsServer := wsapi.NewServer(wsapi.Config{
		Auth:         wsAuth,
		Proxy:        mcpProxy,
		AgentSpawner: agentSpawner,
		VoiceEnabled: cfg.WS.Voice.Enabled,
		Logger:       logger,
	})
	hookMgr.Broadcaster = wsServer.Hub()
	wsHTTPServer := &http.Server{
		Addr:              cfg.WS.Addr,
		Handler:           wsServer,
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatcher := scheduler.NewDispatcher(shellRunner, agentSpawner, pipelineEngine)
	sched := scheduler.New(store, dispatcher, scheduler.Config{
		PollInterval:      cfg.Scheduler.PollInterval,
		MaxConcurrentRuns: cfg.Scheduler.MaxConcurrentRuns,
		FailureThreshold:  cfg.Scheduler.FailureThreshold,
	}, logger)

	return &Daemon{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		store:        store,
		registry:     reg,
		telemetry:    tel,
		promptLoader: prompts,
		scheduler:    sched,
		httpServer:   httpServer,
		wsServer:     wsServer,
		wsHTTPServer: wsHTTPServer,
		pidFile:      filepath.Join(dataDir, "gobby.pid"),
	}, nil
}

// Start begins serving both listeners, the prompt watcher, the scheduler,
// and the registry cleanup sweep, then blocks until ctx is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon: already started")
	}
	d.started = true
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	if err := d.promptLoader.Start(ctx); err != nil {
		d.logger.Warn("prompt loader failed to start", "error", err)
	}

	d.scheduler.Start(ctx)

	d.stopCleanup = make(chan struct{})
	go d.cleanupLoop()

	httpLn, err := net.Listen("tcp", d.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("daemon: listen http: %w", err)
	}
	wsLn, err := net.Listen("tcp", d.wsHTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("daemon: listen ws: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := d.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := d.wsHTTPServer.Serve(wsLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ws server: %w", err)
		}
	}()

	d.logger.Info("daemon started", "http_addr", d.cfg.HTTP.Addr, "ws_addr", d.cfg.WS.Addr, "version", d.opts.Version)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains both listeners, stops the scheduler/prompt watcher/
// registry sweep, shuts down telemetry, and closes storage, each against
// its own slice of ctx's deadline.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.scheduler.Stop()

	if d.stopCleanup != nil {
		close(d.stopCleanup)
	}

	if err := d.promptLoader.Close(); err != nil {
		d.logger.Warn("prompt loader close failed", "error", err)
	}

	if err := d.wsServer.Shutdown(ctx); err != nil {
		d.logger.Warn("ws server shutdown failed", "error", err)
	}
	if err := d.wsHTTPServer.Shutdown(ctx); err != nil {
		d.logger.Warn("ws http server shutdown failed", "error", err)
	}

	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.logger.Warn("http server shutdown failed", "error", err)
	}

	if err := d.telemetry.Shutdown(ctx); err != nil {
		d.logger.Warn("telemetry shutdown failed", "error", err)
	}

	if d.pidFile != "" {
		if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
			d.logger.Warn("removing pid file failed", "error", err)
		}
	}

	return d.store.Close()
}

// cleanupLoop periodically removes registry entries whose OS process has
// died without the agent runner itself noticing, and any entry abandoned
// past staleMaxAge, mirroring the teacher's reaper pattern in
// internal/lifecycle but scoped to in-memory RunningAgent bookkeeping
// rather than a PID file.
func (d *Daemon) cleanupLoop() {
	ticker := time.NewTicker(registryCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCleanup:
			return
		case <-ticker.C:
			dead := map[int]bool{}
			for _, a := range d.registry.ListAll() {
				if a.PID != 0 && !lifecycle.IsProcessRunning(a.PID) {
					dead[a.PID] = true
				}
			}
			if len(dead) > 0 {
				d.registry.CleanupByPIDs(dead)
			}
			d.registry.CleanupStale(staleMaxAge)
		}
	}
}

func (d *Daemon) writePIDFile() error {
	dir := filepath.Dir(d.pidFile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(d.pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.Log.AddSource}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
