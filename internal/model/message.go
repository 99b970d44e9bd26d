package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Thinking holds the reasoning channel of an assistant message, separate
// from its final answer. Content is append-only until IsComplete is set,
// after which it is frozen.
type Thinking struct {
	Content    string    `json:"content"`
	IsComplete bool      `json:"isComplete"`
	Timestamp  time.Time `json:"timestamp"`
}

// Message represents a conversation message.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Thinking is present only for assistant messages whose provider
	// emits a reasoning channel.
	Thinking *Thinking `json:"thinking,omitempty"`
}

// NewUserMessage builds a user message with a fresh identifier.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Stream  bool   `json:"stream"`
}

// SendMessageResponse is the response after a non-streaming send.
type SendMessageResponse struct {
	Message *Message `json:"message"`
	Model   string   `json:"model"`
}

// ErrorEvent represents an error event on the SSE stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TokenEvent represents a rendered content delta on the SSE stream.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// ThinkingDeltaEvent represents a reasoning delta on the SSE stream.
type ThinkingDeltaEvent struct {
	Text string `json:"text"`
}

// MessageCompleteEvent carries the finalized assistant message.
type MessageCompleteEvent struct {
	Message Message `json:"message"`
}
