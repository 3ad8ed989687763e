package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gobby-dev/gobby/internal/adapter"
)

// HooksHandler serves POST /hooks/{adapter}, the single entry point every
// CLI front-end's lifecycle hook posts to.
type HooksHandler struct {
	Adapters *adapter.Registry
	Handler  adapter.Handler
	Logger   *slog.Logger
}

// Routes registers the hook endpoint on r.
func (h *HooksHandler) Routes(r chi.Router) {
	r.Post("/hooks/{adapter}", h.dispatch)
}

func (h *HooksHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "adapter")
	a, ok := h.Adapters.Get(name)
	if !ok {
		writeError(w, h.Logger, "unknown adapter", notFoundErr("adapter", name))
		return
	}

	var native map[string]any
	if err := decodeJSON(r, &native); err != nil {
		writeError(w, h.Logger, "invalid hook payload", validationErr("body", err.Error()))
		return
	}

	resp, err := a.HandleNative(r.Context(), h.Handler, native)
	if err != nil {
		writeError(w, h.Logger, "handling hook failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
