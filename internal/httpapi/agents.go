package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gobby-dev/gobby/internal/model"
)

// AgentRegistry is the subset of internal/registry.Registry the REST
// surface needs. Read-only: agents are spawned and removed by
// internal/agentrunner, not by a client request.
type AgentRegistry interface {
	Get(runID string) (*model.RunningAgent, bool)
	ListAll() []*model.RunningAgent
	ListByParent(parentSessionID string) []*model.RunningAgent
	GetByPID(pid int) (*model.RunningAgent, bool)
}

// AgentsHandler serves read-only views over the running agent registry.
type AgentsHandler struct {
	Registry AgentRegistry
	Logger   *slog.Logger
}

// Routes registers the agent endpoints on r.
func (h *AgentsHandler) Routes(r chi.Router) {
	r.Get("/api/agents", h.list)
	r.Get("/api/agents/{runID}", h.get)
}

func (h *AgentsHandler) list(w http.ResponseWriter, r *http.Request) {
	if parent := r.URL.Query().Get("parent_session_id"); parent != "" {
		writeJSON(w, http.StatusOK, h.Registry.ListByParent(parent))
		return
	}
	if pidRaw := r.URL.Query().Get("pid"); pidRaw != "" {
		pid, err := strconv.Atoi(pidRaw)
		if err != nil {
			writeError(w, h.Logger, "invalid pid", validationErr("pid", "must be an integer"))
			return
		}
		agent, ok := h.Registry.GetByPID(pid)
		if !ok {
			writeJSON(w, http.StatusOK, []*model.RunningAgent{})
			return
		}
		writeJSON(w, http.StatusOK, []*model.RunningAgent{agent})
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.ListAll())
}

func (h *AgentsHandler) get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	agent, ok := h.Registry.Get(runID)
	if !ok {
		writeError(w, h.Logger, "agent not found", notFoundErr("agent", runID))
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
