package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// MemoryService is the subset of internal/memory.Service the REST surface
// needs.
type MemoryService interface {
	Save(ctx context.Context, projectID, content string) error
	RecallRelevant(ctx context.Context, projectID, query string, limit int) ([]string, error)
	ProjectContext(ctx context.Context, projectID string) (string, error)
}

// MemoriesHandler serves the project memory endpoints.
type MemoriesHandler struct {
	Memory MemoryService
	Logger *slog.Logger
}

// Routes registers the memory endpoints on r.
func (h *MemoriesHandler) Routes(r chi.Router) {
	r.Post("/api/projects/{projectID}/memories", h.save)
	r.Get("/api/projects/{projectID}/memories/recall", h.recall)
	r.Get("/api/projects/{projectID}/memories/context", h.context)
}

func (h *MemoriesHandler) save(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	if err := h.Memory.Save(r.Context(), chi.URLParam(r, "projectID"), body.Content); err != nil {
		writeError(w, h.Logger, "saving memory failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "saved"})
}

func (h *MemoriesHandler) recall(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	items, err := h.Memory.RecallRelevant(r.Context(), chi.URLParam(r, "projectID"), r.URL.Query().Get("query"), limit)
	if err != nil {
		writeError(w, h.Logger, "recalling memories failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"memories": items})
}

func (h *MemoriesHandler) context(w http.ResponseWriter, r *http.Request) {
	text, err := h.Memory.ProjectContext(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, h.Logger, "loading project context failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": text})
}
