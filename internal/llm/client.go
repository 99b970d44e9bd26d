// Package llm provides assistant provider clients and the retrying
// fallback request path.
package llm

import (
	"context"
	"strings"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

// ChatMessage is the formatted message shape sent to providers: role and
// content only, no extra fields.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// CompletionResponse represents a complete (non-streaming) response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// ChunkHandler receives raw transport chunks from a streaming response,
// in arrival order. Returning an error stops the read.
type ChunkHandler func(chunk string) error

// Client is the interface for assistant providers.
type Client interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamChunks opens a streaming completion and forwards each raw
	// chunk to the handler. The chunk source is read-once, forward-only.
	StreamChunks(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) error

	// Name returns the provider name.
	Name() string

	// Models returns the model identifiers this provider serves.
	Models() []string
}

// FormatMessages converts stored messages into the provider wire shape:
// content is trimmed, blank entries are dropped, and unknown roles are
// coerced to user.
func FormatMessages(messages []model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := string(msg.Role)
		switch msg.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		default:
			role = string(model.RoleUser)
		}
		out = append(out, ChatMessage{Role: role, Content: content})
	}
	return out
}

// sanitizeMessages applies the same rules to already-formatted messages,
// used by the retry client's precondition check.
func sanitizeMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := msg.Role
		switch role {
		case "user", "assistant", "system":
		default:
			role = "user"
		}
		out = append(out, ChatMessage{Role: role, Content: content})
	}
	return out
}
