// Package httpapi is the daemon's REST control plane: one chi router
// composing a handler per resource family (hooks, sessions, tasks,
// pipelines, memories, agents), each registering its own routes the way
// the teacher's internal/daemon/api.RunsHandler/SchedulesHandler do,
// generalized from the teacher's bare http.ServeMux to go-chi/chi/v5 so
// path-parameter extraction and middleware chaining don't have to be
// hand-rolled per handler the way spec.md's broader surface would need.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Config names the handler sets a Router may mount. Each is optional; a
// nil field simply leaves that resource family's routes unregistered,
// the way the teacher's Router.Set*Provider methods gate optional routes.
type Config struct {
	Version string

	Hooks     *HooksHandler
	Sessions  *SessionsHandler
	Tasks     *TasksHandler
	Pipelines *PipelinesHandler
	Memories  *MemoriesHandler
	Agents    *AgentsHandler

	// Files and MCP mount pre-built sub-routers from internal/fileapi and
	// internal/mcpproxy, kept decoupled from httpapi's own handler types
	// since both packages are large enough to own their own routing.
	Files FilesRouter
	MCP   http.Handler

	// Metrics, when set, is mounted at GET /metrics (internal/telemetry's
	// promhttp.Handler()).
	Metrics http.Handler

	AllowedOrigins []string
}

// FilesRouter is the subset of internal/fileapi.Router httpapi needs to
// mount it under /api/files.
type FilesRouter interface {
	Routes(r chi.Router)
}

// NewRouter builds the chi router, middleware chain, and every configured
// resource family's routes.
func NewRouter(cfg Config, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(CORS(cfg.AllowedOrigins))

	r.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": cfg.Version})
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Hooks != nil {
		cfg.Hooks.Routes(r)
	}
	if cfg.Sessions != nil {
		cfg.Sessions.Routes(r)
	}
	if cfg.Tasks != nil {
		cfg.Tasks.Routes(r)
	}
	if cfg.Pipelines != nil {
		cfg.Pipelines.Routes(r)
	}
	if cfg.Memories != nil {
		cfg.Memories.Routes(r)
	}
	if cfg.Agents != nil {
		cfg.Agents.Routes(r)
	}
	if cfg.Files != nil {
		r.Route("/api/files", cfg.Files.Routes)
	}
	if cfg.MCP != nil {
		r.Mount("/mcp", cfg.MCP)
	}

	return r
}

// NewServer wraps the router in an *http.Server with the teacher's
// conservative timeout defaults.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
