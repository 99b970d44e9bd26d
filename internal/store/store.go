// Package store owns conversation history. It is the only component
// allowed to mutate the message list; everything else goes through its
// narrow operations. Conversations are partitioned by model identifier,
// so switching models switches the active history.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
	"github.com/netpilot-ai/assistant-core/pkg/metrics"
)

// KeyPrefix namespaces every conversation key so a clear-all operation
// can enumerate and remove them without touching unrelated keys.
const KeyPrefix = "chat_history_"

// Key returns the storage key for a model's conversation.
func Key(modelID string) string {
	return KeyPrefix + modelID
}

// Backend is the durable layer beneath the store. Put must be atomic per
// key: either the full value is recorded or the prior one is untouched.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store holds the live conversations and persists them through a backend.
type Store struct {
	backend Backend
	log     *logger.Logger

	mu    sync.Mutex
	convs map[string]*model.Conversation
}

// New creates a store over the given backend.
func New(backend Backend, log *logger.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
		convs:   make(map[string]*model.Conversation),
	}
}

// Append adds a message to the model's conversation, creating the
// conversation on first use.
func (s *Store) Append(modelID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(modelID)
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()
}

// FinalizeTurn records the turn's final assistant message: the frozen
// streamed message on success, or the substituted error message.
func (s *Store) FinalizeTurn(modelID string, msg model.Message) {
	s.Append(modelID, msg)
}

// Messages returns a copy of the model's message list. Callers never
// receive a reference into the store's own state.
func (s *Store) Messages(modelID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[modelID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

// Conversation returns a snapshot of the model's conversation.
func (s *Store) Conversation(modelID string) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(modelID)
	snapshot := *conv
	snapshot.Messages = make([]model.Message, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	return snapshot
}

// Save persists the model's conversation. Invoked after every turn,
// success or error.
func (s *Store) Save(ctx context.Context, modelID string) error {
	s.mu.Lock()
	conv := s.conversationLocked(modelID)
	data, err := json.Marshal(conv)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	start := time.Now()
	if err := s.backend.Put(ctx, Key(modelID), data); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	metrics.StoreSaveDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Load restores the model's conversation from the backend, migrating
// legacy shapes. A missing or unreadable record yields a fresh empty
// conversation, never an error visible to the caller's conversation flow.
func (s *Store) Load(ctx context.Context, modelID string) (model.Conversation, error) {
	data, found, err := s.backend.Get(ctx, Key(modelID))
	if err != nil {
		return model.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}

	var conv *model.Conversation
	if found {
		conv = migrate(modelID, data)
	} else {
		conv = newConversation(modelID)
	}

	s.mu.Lock()
	s.convs[modelID] = conv
	snapshot := *conv
	snapshot.Messages = make([]model.Message, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	s.mu.Unlock()

	s.log.Info("conversation loaded",
		zap.String("model", modelID),
		zap.Int("messages", len(snapshot.Messages)))
	return snapshot, nil
}

// Clear drops the model's conversation from memory and storage.
func (s *Store) Clear(ctx context.Context, modelID string) error {
	s.mu.Lock()
	delete(s.convs, modelID)
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, Key(modelID)); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// ClearAll removes every conversation under the key prefix.
func (s *Store) ClearAll(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("enumerate conversations: %w", err)
	}

	s.mu.Lock()
	s.convs = make(map[string]*model.Conversation)
	s.mu.Unlock()

	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear conversation %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) conversationLocked(modelID string) *model.Conversation {
	conv, ok := s.convs[modelID]
	if !ok {
		conv = newConversation(modelID)
		s.convs[modelID] = conv
	}
	return conv
}

func newConversation(modelID string) *model.Conversation {
	now := time.Now()
	return &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
		Settings: model.Settings{
			Temperature: 0.7,
			MaxTokens:   4096,
			StreamMode:  true,
			Model:       modelID,
		},
	}
}
