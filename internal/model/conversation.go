// Package model defines data structures for the assistant core.
package model

import (
	"time"
)

// Settings holds per-conversation generation settings.
type Settings struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	StreamMode  bool    `json:"streamMode"`
	Model       string  `json:"model"`
}

// Conversation is an ordered sequence of messages plus metadata.
// The message list is owned exclusively by the conversation store.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Settings  Settings  `json:"settings"`
}

// ModelInfo describes a selectable assistant model.
type ModelInfo struct {
	Value       string   `json:"value"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	MaxTokens   int      `json:"max_tokens"`
}

// ModelsResponse is the response for listing available models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelConnectionStatus reports the reachability of one provider model.
type ModelConnectionStatus struct {
	Connected bool   `json:"connected"`
	Model     string `json:"model"`
	Message   string `json:"message"`
	LastCheck string `json:"last_check"`
}
