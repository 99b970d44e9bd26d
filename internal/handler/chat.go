package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/netpilot-ai/assistant-core/internal/llm"
	"github.com/netpilot-ai/assistant-core/internal/middleware"
	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/internal/service"
	"github.com/netpilot-ai/assistant-core/internal/turn"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

// ChatHandler handles non-streaming message sends.
type ChatHandler struct {
	chatService  *service.ChatService
	defaultModel string
	logger       *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService, defaultModel string, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:  chatSvc,
		defaultModel: defaultModel,
		logger:       log,
	}
}

// Send handles POST /api/v1/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	modelID := req.Model
	if modelID == "" {
		modelID = h.defaultModel
	}
	if err := middleware.ValidateModelID(modelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chatService.Send(r.Context(), modelID, req.Content)
	if err != nil {
		writeError(w, sendErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.SendMessageResponse{
		Message: &result.Message,
		Model:   modelID,
	})
}

// Abort handles POST /api/v1/chat/abort
func (h *ChatHandler) Abort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	modelID := req.Model
	if modelID == "" {
		modelID = h.defaultModel
	}

	aborted := h.chatService.Abort(modelID)
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// Status handles GET /api/v1/chat/status
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model")
	if modelID == "" {
		modelID = h.defaultModel
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"model": modelID,
		"state": h.chatService.Status(modelID),
	})
}

// sendErrorStatus maps send rejections to HTTP status codes. Only
// pre-turn rejections reach here; turn failures are in-band.
func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, turn.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, turn.ErrEmptyMessage), errors.Is(err, turn.ErrMessageTooLong):
		return http.StatusBadRequest
	}
	var reqErr *llm.RequestError
	if errors.As(err, &reqErr) && reqErr.Class == llm.ClassValidation {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
