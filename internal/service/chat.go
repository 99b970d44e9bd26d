// Package service orchestrates conversation turns: it owns the
// single-flight guard, wires the decoder, turn machine, and render driver
// together for streaming sends, and falls back to the retrying request
// path for non-streaming sends.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/decode"
	"github.com/netpilot-ai/assistant-core/internal/llm"
	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/internal/render"
	"github.com/netpilot-ai/assistant-core/internal/store"
	"github.com/netpilot-ai/assistant-core/internal/turn"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
	"github.com/netpilot-ai/assistant-core/pkg/metrics"
)

// StreamCallbacks receives live turn output. All callbacks are invoked
// from the turn's own goroutines; nil members are skipped.
type StreamCallbacks struct {
	// OnDelta fires once per rendered rune of assistant content.
	OnDelta func(delta string)

	// OnThinking fires per reasoning delta while the reasoning channel
	// is open.
	OnThinking func(delta string)

	// OnStatus fires on lifecycle state changes.
	OnStatus func(state string)
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	// Message is the persisted assistant message: the streamed content on
	// success, or the substituted error description on failure.
	Message model.Message

	// Failed reports whether the turn ended in the failed state.
	Failed bool
}

// ChatService coordinates turns per conversation. Conversations are
// keyed by model identifier.
type ChatService struct {
	router *llm.Router
	store  *store.Store
	log    *logger.Logger

	renderInterval time.Duration
	retryAttempts  int
	retryBaseDelay time.Duration

	mu       sync.Mutex
	guards   map[string]*turn.Guard
	machines map[string]*turn.Machine
	cancels  map[string]context.CancelFunc
}

// NewChatService creates the orchestrator.
func NewChatService(router *llm.Router, st *store.Store, log *logger.Logger, renderInterval time.Duration, retryAttempts int, retryBaseDelay time.Duration) *ChatService {
	return &ChatService{
		router:         router,
		store:          st,
		log:            log,
		renderInterval: renderInterval,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		guards:         make(map[string]*turn.Guard),
		machines:       make(map[string]*turn.Machine),
		cancels:        make(map[string]context.CancelFunc),
	}
}

func (s *ChatService) guardFor(modelID string) *turn.Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[modelID]
	if !ok {
		g = &turn.Guard{}
		s.guards[modelID] = g
	}
	return g
}

func (s *ChatService) trackTurn(modelID string, m *turn.Machine, cancel context.CancelFunc) {
	s.mu.Lock()
	s.machines[modelID] = m
	s.cancels[modelID] = cancel
	s.mu.Unlock()
}

func (s *ChatService) untrackTurn(modelID string) {
	s.mu.Lock()
	delete(s.machines, modelID)
	delete(s.cancels, modelID)
	s.mu.Unlock()
}

// Status returns the lifecycle state of the conversation's current turn,
// or "idle" when no turn is in flight.
func (s *ChatService) Status(modelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.machines[modelID]; ok {
		return m.State().String()
	}
	return turn.StateIdle.String()
}

// SendStreaming runs one full streaming turn: it validates and records
// the user message, streams the provider response through the decoder and
// turn machine, reveals content through the render driver, and persists
// the final message whatever the outcome. Validation and single-flight
// rejections are returned as errors before anything is recorded.
func (s *ChatService) SendStreaming(ctx context.Context, modelID, userText string, cb StreamCallbacks) (*TurnResult, error) {
	guard := s.guardFor(modelID)
	if !guard.Acquire() {
		return nil, turn.ErrTurnInFlight
	}
	defer guard.Release()

	client, err := s.router.ClientFor(modelID)
	if err != nil {
		return nil, &llm.RequestError{Class: llm.ClassValidation, Detail: err.Error()}
	}

	// The sink is bound before the driver exists; no event reaches it
	// until the stream is open.
	var driver *render.Driver
	machine := turn.NewMachine(func(text string) { driver.Apply(text) }, s.log)

	pending, err := machine.Begin(userText)
	if err != nil {
		return nil, err
	}

	s.store.Append(modelID, model.NewUserMessage(userText))
	if err := s.store.Save(ctx, modelID); err != nil {
		s.log.Warn("failed to persist user message",
			zap.String("model", modelID), zap.Error(err))
	}

	driver = render.NewDriver(pending, s.renderInterval, func(delta string) {
		if cb.OnDelta != nil {
			cb.OnDelta(delta)
		}
	})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.trackTurn(modelID, machine, cancel)
	defer s.untrackTurn(modelID)

	notifyStatus(cb, machine.State())
	start := time.Now()

	req := &llm.CompletionRequest{
		Model:    modelID,
		Messages: llm.FormatMessages(s.store.Messages(modelID)),
		Stream:   true,
	}

	decoder := decode.New()
	streamErr := client.StreamChunks(streamCtx, req, func(chunk string) error {
		s.applyEvents(machine, decoder.Decode(chunk), cb)
		return nil
	})
	s.applyEvents(machine, decoder.Flush(), cb)

	driver.Close()

	if streamErr != nil && !machine.State().Terminal() {
		if errors.Is(streamErr, context.Canceled) {
			machine.Abort("The request was cancelled.")
		} else {
			machine.FailTransport(streamErr)
		}
	}
	machine.Finish()
	notifyStatus(cb, machine.State())

	final := machine.FinalMessage()
	s.store.FinalizeTurn(modelID, *final)
	if err := s.store.Save(ctx, modelID); err != nil {
		s.log.Error("failed to persist conversation",
			zap.String("model", modelID), zap.Error(err))
	}

	failed := machine.State() == turn.StateFailed
	outcome := "success"
	if failed {
		outcome = "failed"
	}
	metrics.RecordTurn(modelID, outcome)
	metrics.LLMStreamDuration.WithLabelValues(modelID, outcome).Observe(time.Since(start).Seconds())

	return &TurnResult{Message: *final, Failed: failed}, nil
}

// applyEvents feeds decoded events into the machine, mirroring reasoning
// deltas to the callback while the reasoning channel is still open.
func (s *ChatService) applyEvents(machine *turn.Machine, events []model.Event, cb StreamCallbacks) {
	for _, ev := range events {
		metrics.DecodedEvents.WithLabelValues(string(ev.Type)).Inc()
		prev := machine.State()
		if ev.Type == model.EventThinking && cb.OnThinking != nil &&
			(prev == turn.StateAwaiting || prev == turn.StateThinking) {
			cb.OnThinking(ev.Text)
		}
		machine.Apply(ev)
		if machine.State() != prev {
			notifyStatus(cb, machine.State())
		}
	}
}

func notifyStatus(cb StreamCallbacks, state turn.State) {
	if cb.OnStatus != nil {
		cb.OnStatus(state.String())
	}
}

// Send runs one non-streaming turn through the retrying request path.
// The turn outcome is always persisted; only validation and single-flight
// rejections return an error.
func (s *ChatService) Send(ctx context.Context, modelID, userText string) (*TurnResult, error) {
	guard := s.guardFor(modelID)
	if !guard.Acquire() {
		return nil, turn.ErrTurnInFlight
	}
	defer guard.Release()

	client, err := s.router.ClientFor(modelID)
	if err != nil {
		return nil, &llm.RequestError{Class: llm.ClassValidation, Detail: err.Error()}
	}

	var pending *model.Message
	machine := turn.NewMachine(func(text string) { pending.Content += text }, s.log)
	pending, err = machine.Begin(userText)
	if err != nil {
		return nil, err
	}

	s.store.Append(modelID, model.NewUserMessage(userText))
	if err := s.store.Save(ctx, modelID); err != nil {
		s.log.Warn("failed to persist user message",
			zap.String("model", modelID), zap.Error(err))
	}
	s.trackTurn(modelID, machine, func() {})
	defer s.untrackTurn(modelID)

	retry := llm.NewRetryClient(client, s.log, llm.WithBaseDelay(s.retryBaseDelay))
	resp, err := retry.SendWithRetry(ctx, &llm.CompletionRequest{
		Model:    modelID,
		Messages: llm.FormatMessages(s.store.Messages(modelID)),
	}, s.retryAttempts)
	if err != nil {
		machine.Abort(llm.UserMessage(err))
	} else {
		machine.Apply(model.ContentEvent(resp.Content))
		machine.Finish()
		metrics.RecordLLMStream(modelID, "success",
			float64(resp.LatencyMs)/1000, resp.TokensIn, resp.TokensOut)
	}

	final := machine.FinalMessage()
	s.store.FinalizeTurn(modelID, *final)
	if err := s.store.Save(ctx, modelID); err != nil {
		s.log.Error("failed to persist conversation",
			zap.String("model", modelID), zap.Error(err))
	}

	failed := machine.State() == turn.StateFailed
	outcome := "success"
	if failed {
		outcome = "failed"
	}
	metrics.RecordTurn(modelID, outcome)

	return &TurnResult{Message: *final, Failed: failed}, nil
}

// Abort cancels the conversation's in-flight turn, if any. The turn still
// finalizes through its normal path: the stream read stops, the machine
// records the cancellation, and the error message is persisted.
func (s *ChatService) Abort(modelID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[modelID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// History returns the conversation for a model, loading it from storage
// on first access.
func (s *ChatService) History(ctx context.Context, modelID string) (model.Conversation, error) {
	if msgs := s.store.Messages(modelID); msgs != nil {
		return s.store.Conversation(modelID), nil
	}
	return s.store.Load(ctx, modelID)
}

// ClearHistory removes the conversation for a model.
func (s *ChatService) ClearHistory(ctx context.Context, modelID string) error {
	return s.store.Clear(ctx, modelID)
}

// ClearAllHistory removes every stored conversation.
func (s *ChatService) ClearAllHistory(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}
