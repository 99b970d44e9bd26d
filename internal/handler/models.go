package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netpilot-ai/assistant-core/internal/llm"
	"github.com/netpilot-ai/assistant-core/internal/middleware"
	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

// ModelsHandler exposes the model catalog and connection checks.
type ModelsHandler struct {
	registry *llm.Registry
	logger   *logger.Logger
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(registry *llm.Registry, log *logger.Logger) *ModelsHandler {
	return &ModelsHandler{registry: registry, logger: log}
}

// List handles GET /api/v1/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ModelsResponse{
		Models: h.registry.List(),
	})
}

// Status handles GET /api/v1/models/{model}/status
func (h *ModelsHandler) Status(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	if err := middleware.ValidateModelID(modelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := h.registry.CheckConnection(r.Context(), modelID)
	writeJSON(w, http.StatusOK, status)
}
