package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gobby-dev/gobby/internal/model"
)

// SessionManager is the subset of internal/session.Manager the REST
// surface needs.
type SessionManager interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	ListByProject(ctx context.Context, projectID string) ([]*model.Session, error)
	Update(ctx context.Context, sess *model.Session) error
}

// SessionsHandler serves the session read/update routes under /api.
type SessionsHandler struct {
	Sessions SessionManager
	Logger   *slog.Logger
}

// Routes registers the session endpoints on r.
func (h *SessionsHandler) Routes(r chi.Router) {
	r.Get("/api/projects/{projectID}/sessions", h.list)
	r.Get("/api/sessions/{id}", h.get)
	r.Put("/api/sessions/{id}", h.update)
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	sessions, err := h.Sessions.ListByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, h.Logger, "listing sessions failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, "fetching session failed", err)
		return
	}
	if sess == nil {
		writeError(w, h.Logger, "session not found", notFoundErr("session", chi.URLParam(r, "id")))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionsHandler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Logger, "fetching session failed", err)
		return
	}
	if sess == nil {
		writeError(w, h.Logger, "session not found", notFoundErr("session", id))
		return
	}

	var body struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.Logger, "invalid request body", validationErr("body", err.Error()))
		return
	}
	if body.Title != "" {
		sess.Title = body.Title
	}
	if body.Status != "" {
		sess.Status = model.SessionStatus(body.Status)
	}
	if err := h.Sessions.Update(r.Context(), sess); err != nil {
		writeError(w, h.Logger, "updating session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
