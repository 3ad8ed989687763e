package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gobby-dev/gobby/internal/model"
)

// TaskManager is the subset of internal/task.Manager the REST surface
// needs.
type TaskManager interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	ListByProject(ctx context.Context, projectID string) ([]*model.Task, error)
	ResolveReference(ctx context.Context, ref, projectID string) (*model.Task, error)
	AddDependency(ctx context.Context, d *model.TaskDependency) error
}

// TasksHandler serves task CRUD and the dependency graph under /api.
type TasksHandler struct {
	Tasks  TaskManager
	Logger *slog.Logger
}

// Routes registers the task endpoints on r.
func (h *TasksHandler) Routes(r chi.Router) {
	r.Get("/api/projects/{projectID}/tasks", h.list)
	r.Post("/api/projects/{projectID}/tasks", h.create)
	r.Get("/api/projects/{projectID}/tasks/{ref}", h.get)
	r.Put("/api/tasks/{id}", h.update)
	r.Post("/api/tasks/{id}/dependencies", h.addDependency)
}

func (h *TasksHandler) list(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, h.Logger, "listing tasks failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TasksHandler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		TaskType    string `json:"task_type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	if body.Title == "" {
		writeError(w, h.Logger, "title is required", validationErr("title", "must not be empty"))
		return
	}

	t := &model.Task{
		ID:          model.NewID(),
		ProjectID:   chi.URLParam(r, "projectID"),
		Title:       body.Title,
		Description: body.Description,
		Status:      model.TaskStatusOpen,
		Priority:    body.Priority,
		TaskType:    body.TaskType,
		Commits:     []model.TaskCommit{},
		Labels:      []string{},
	}
	if err := h.Tasks.Create(r.Context(), t); err != nil {
		writeError(w, h.Logger, "creating task failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TasksHandler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.ResolveReference(r.Context(), chi.URLParam(r, "ref"), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, h.Logger, "resolving task failed", err)
		return
	}
	if t == nil {
		writeError(w, h.Logger, "task not found", notFoundErr("task", chi.URLParam(r, "ref")))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TasksHandler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, "fetching task failed", err)
		return
	}
	if t == nil {
		writeError(w, h.Logger, "task not found", notFoundErr("task", id))
		return
	}

	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Priority    *string `json:"priority"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	if body.Title != nil {
		t.Title = *body.Title
	}
	if body.Description != nil {
		t.Description = *body.Description
	}
	if body.Status != nil {
		t.Status = model.TaskStatus(*body.Status)
	}
	if body.Priority != nil {
		t.Priority = *body.Priority
	}
	if err := h.Tasks.Update(r.Context(), t); err != nil {
		writeError(w, h.Logger, "updating task failed", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TasksHandler) addDependency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToTaskID string `json:"to_task_id"`
		DepType  string `json:"dep_type"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	dep := &model.TaskDependency{
		ID:         model.NewID(),
		FromTaskID: chi.URLParam(r, "id"),
		ToTaskID:   body.ToTaskID,
		DepType:    model.DepType(body.DepType),
	}
	if err := h.Tasks.AddDependency(r.Context(), dep); err != nil {
		writeError(w, h.Logger, "adding dependency failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}
