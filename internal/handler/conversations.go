package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/middleware"
	"github.com/netpilot-ai/assistant-core/internal/service"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

// ConversationHandler exposes stored conversation history.
type ConversationHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(chatSvc *service.ChatService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{chatService: chatSvc, logger: log}
}

// Get handles GET /api/v1/conversations/{model}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	if err := middleware.ValidateModelID(modelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.chatService.History(r.Context(), modelID)
	if err != nil {
		h.logger.Error("failed to load conversation",
			zap.String("model", modelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{model}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	if err := middleware.ValidateModelID(modelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chatService.ClearHistory(r.Context(), modelID); err != nil {
		h.logger.Error("failed to clear conversation",
			zap.String("model", modelID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// DeleteAll handles DELETE /api/v1/conversations
func (h *ConversationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.chatService.ClearAllHistory(r.Context()); err != nil {
		h.logger.Error("failed to clear conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
