package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/middleware"
	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/internal/service"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
	"github.com/netpilot-ai/assistant-core/pkg/metrics"
)

// StreamHandler handles the SSE streaming send endpoint.
type StreamHandler struct {
	chatService  *service.ChatService
	defaultModel string
	logger       *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chatSvc *service.ChatService, defaultModel string, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chatService:  chatSvc,
		defaultModel: defaultModel,
		logger:       log,
	}
}

// sseWriter serializes event writes: token events come from the render
// worker while thinking and status events come from the stream reader.
// After the first write failure the client is gone and every later send
// is a no-op; the turn itself still finalizes.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

var errClientGone = errors.New("client connection lost")

func (s *sseWriter) send(event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return errClientGone
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		s.failed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// ok reports whether the client is still receiving events.
func (s *sseWriter) ok() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.failed
}

// StreamWithMessage handles POST /api/v1/chat/stream
// Accepts a message and streams the turn's events until it settles.
func (h *StreamHandler) StreamWithMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

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

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sse := &sseWriter{w: w, flusher: flusher}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	var index int
	result, err := h.chatService.SendStreaming(ctx, modelID, req.Content, service.StreamCallbacks{
		OnDelta: func(delta string) {
			sse.send("token", &model.TokenEvent{Token: delta, Index: index})
			index++
		},
		OnThinking: func(delta string) {
			sse.send("thinking", &model.ThinkingDeltaEvent{Text: delta})
		},
		OnStatus: func(state string) {
			sse.send("status", map[string]string{"state": state})
		},
	})
	if err != nil {
		// Pre-turn rejection: nothing was recorded, nothing streamed.
		sse.send("error", &model.ErrorEvent{
			Code:    "rejected",
			Message: err.Error(),
		})
		return
	}

	if !sse.ok() {
		h.logger.Info("client disconnected mid-stream",
			zap.String("model", modelID),
			zap.Bool("failed", result.Failed))
		return
	}

	if result.Failed {
		sse.send("error", &model.ErrorEvent{
			Code:    "turn_failed",
			Message: result.Message.Content,
		})
	}

	sse.send("message_complete", &model.MessageCompleteEvent{
		Message: result.Message,
	})
	sse.send("done", map[string]bool{"success": !result.Failed})

	h.logger.Info("stream finished",
		zap.String("model", modelID),
		zap.Bool("failed", result.Failed),
		zap.Int("tokens", index))
}
