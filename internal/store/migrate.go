package store

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

// migrate converts a persisted record into the current conversation
// schema. Two legacy shapes are supported for backward compatibility: a
// bare ordered message list, and a wrapper object with a messages field
// (which the current schema is a superset of). Any other shape yields an
// empty conversation rather than an error. Migration runs once here, at
// load time, never inline in conversation logic.
func migrate(modelID string, data []byte) *model.Conversation {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return newConversation(modelID)
	}

	// Legacy shape 1: bare message list.
	if data[0] == '[' {
		var messages []model.Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return newConversation(modelID)
		}
		conv := newConversation(modelID)
		conv.Messages = messages
		return conv
	}

	// Current schema, or legacy shape 2: an object wrapping a messages
	// field. The wrapper lacks the remaining metadata, which is filled
	// with defaults below.
	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return newConversation(modelID)
	}

	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	if conv.Model == "" {
		conv.Model = modelID
	}
	if conv.CreatedAt.IsZero() {
		fresh := newConversation(modelID)
		conv.CreatedAt = fresh.CreatedAt
		conv.UpdatedAt = fresh.UpdatedAt
	}
	if conv.Settings == (model.Settings{}) {
		conv.Settings = newConversation(modelID).Settings
	}
	return &conv
}
