package mcpproxy

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Handler exposes the proxy's call_tool capability and its tool metrics as
// a plain http.Handler, mountable at /mcp via internal/httpapi.Config.MCP.
type Handler struct {
	Proxy   *Proxy
	Metrics Metrics
}

// NewHandler constructs a Handler over an already-built Proxy.
func NewHandler(proxy *Proxy, metrics Metrics) *Handler {
	return &Handler{Proxy: proxy, Metrics: metrics}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/mcp/call":
		h.call(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/mcp/metrics":
		h.metrics(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/mcp/metrics/top":
		h.topTools(w, r)
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) call(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID  string         `json:"project_id"`
		ServerName string         `json:"server"`
		ToolName   string         `json:"tool"`
		Arguments  map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ServerName == "" || body.ToolName == "" {
		writeErr(w, http.StatusBadRequest, "server and tool are required")
		return
	}

	result, err := h.Proxy.CallTool(r.Context(), body.ProjectID, body.ServerName, body.ToolName, body.Arguments)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, summary, err := h.Metrics.GetToolMetrics(r.Context(), q.Get("project_id"), q.Get("server"), q.Get("tool"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "listing tool metrics failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows, "summary": summary})
}

func (h *Handler) topTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 10
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := h.Metrics.GetTopTools(r.Context(), q.Get("project_id"), limit, q.Get("order_by"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "listing top tools failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
