package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gobby-dev/gobby/internal/model"
	gobbyerrors "github.com/gobby-dev/gobby/pkg/errors"
)

// PipelineEngine is the subset of internal/pipeline.Engine the REST
// surface needs.
type PipelineEngine interface {
	Run(ctx context.Context, name string, inputs map[string]interface{}, awaitCompletion bool) (string, error)
	Approve(ctx context.Context, token, approvedBy string) (string, error)
}

// PipelineStore is the subset of internal/pipeline.Store needed to read
// back an execution's state.
type PipelineStore interface {
	GetPipelineExecution(ctx context.Context, id string) (*model.PipelineExecution, error)
	ListStepExecutions(ctx context.Context, executionID string) ([]*model.StepExecution, error)
}

// PipelinesHandler serves the pipeline run/inspect/approve endpoints
// spec.md §4.9 describes.
type PipelinesHandler struct {
	Engine PipelineEngine
	Store  PipelineStore
	Logger *slog.Logger
}

// Routes registers the pipeline endpoints on r.
func (h *PipelinesHandler) Routes(r chi.Router) {
	r.Post("/api/pipelines/run", h.run)
	r.Get("/api/pipelines/{executionID}", h.get)
	r.Post("/api/pipelines/approve/{token}", h.approve)
}

func (h *PipelinesHandler) run(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string                 `json:"name"`
		Inputs          map[string]interface{} `json:"inputs"`
		AwaitCompletion bool                   `json:"await_completion"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	if body.Name == "" {
		writeError(w, h.Logger, "name is required", validationErr("name", "must not be empty"))
		return
	}

	executionID, err := h.Engine.Run(r.Context(), body.Name, body.Inputs, body.AwaitCompletion)
	var approvalErr *gobbyerrors.ApprovalRequiredError
	if err != nil && !gobbyerrors.As(err, &approvalErr) {
		writeError(w, h.Logger, "running pipeline failed", err)
		return
	}

	status := http.StatusOK
	if approvalErr != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]string{"execution_id": executionID})
}

func (h *PipelinesHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	pe, err := h.Store.GetPipelineExecution(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, "fetching pipeline execution failed", err)
		return
	}
	if pe == nil {
		writeError(w, h.Logger, "pipeline execution not found", notFoundErr("pipeline_execution", id))
		return
	}
	steps, err := h.Store.ListStepExecutions(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, "fetching step executions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution": pe,
		"steps":     steps,
	})
}

func (h *PipelinesHandler) approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ApprovedBy string `json:"approved_by"`
	}
	_ = decodeJSON(r, &body)

	executionID, err := h.Engine.Approve(r.Context(), chi.URLParam(r, "token"), body.ApprovedBy)
	if err != nil {
		writeError(w, h.Logger, "approving pipeline step failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"execution_id": executionID})
}
