// Package turn owns the lifecycle of a single assistant turn: from the
// accepted send, through the thinking and streaming phases, to a terminal
// state. A machine instance serves exactly one turn; a new turn always
// starts a fresh machine.
package turn

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

// State is the lifecycle state of one assistant turn.
type State int

const (
	StateIdle State = iota
	StateAwaiting
	StateThinking
	StateStreaming
	StateSucceeded
	StateFailed
)

// String implements fmt.Stringer for log fields.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateThinking:
		return "thinking"
	case StateStreaming:
		return "streaming"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the state is absorbing for this turn.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// maxUserTextLen bounds a single user message (~100KB).
const maxUserTextLen = 100000

var (
	// ErrTurnInFlight is returned when a send is rejected because another
	// turn for the same conversation is still non-terminal.
	ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrMessageTooLong is returned when user input exceeds the limit.
	ErrMessageTooLong = errors.New("message content exceeds maximum length")
)

// ContentSink receives content event text, in order, while the turn is
// streaming. The render driver implements this.
type ContentSink func(text string)

// Machine drives one assistant turn. Events must be fed from a single
// goroutine; only State is safe to read concurrently.
type Machine struct {
	session int64
	state   atomic.Int32
	pending *model.Message
	sink    ContentSink
	log     *logger.Logger

	contentSeen bool
	failText    string
}

// NewMachine creates an idle machine. sink receives content deltas as they
// are accepted; it must not be nil.
func NewMachine(sink ContentSink, log *logger.Logger) *Machine {
	return &Machine{
		session: time.Now().UnixNano(),
		sink:    sink,
		log:     log,
	}
}

// Session returns the diagnostic session identifier for this turn. It is
// never persisted.
func (m *Machine) Session() int64 { return m.session }

// State returns the current lifecycle state.
func (m *Machine) State() State { return State(m.state.Load()) }

func (m *Machine) setState(s State) { m.state.Store(int32(s)) }

// Pending returns the open assistant message, or nil before Begin or
// after a failure discarded it.
func (m *Machine) Pending() *model.Message { return m.pending }

// Begin validates the user text and opens the turn, creating the pending
// assistant message. It is the Idle -> Awaiting transition.
func (m *Machine) Begin(userText string) (*model.Message, error) {
	if m.State() != StateIdle {
		return nil, ErrTurnInFlight
	}
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyMessage
	}
	if len(userText) > maxUserTextLen {
		return nil, ErrMessageTooLong
	}

	m.pending = &model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleAssistant,
		Timestamp: time.Now(),
	}
	m.setState(StateAwaiting)
	m.log.Debug("turn opened", zap.Int64("session", m.session))
	return m.pending, nil
}

// Apply consumes one decoded event. Events arriving after a terminal
// state are dropped.
func (m *Machine) Apply(ev model.Event) {
	if m.State().Terminal() || m.State() == StateIdle {
		return
	}

	switch ev.Type {
	case model.EventThinking:
		m.applyThinking(ev.Text)
	case model.EventContent:
		m.applyContent(ev.Text)
	case model.EventError:
		m.fail(ev.Text)
	case model.EventDone:
		m.Finish()
	}
}

func (m *Machine) applyThinking(text string) {
	if m.State() == StateAwaiting {
		m.setState(StateThinking)
	}
	if m.State() != StateThinking {
		// The reasoning channel is frozen once final content began.
		return
	}
	if m.pending.Thinking == nil {
		m.pending.Thinking = &model.Thinking{Timestamp: time.Now()}
	}
	m.pending.Thinking.Content += text
}

func (m *Machine) applyContent(text string) {
	if s := m.State(); s == StateAwaiting || s == StateThinking {
		m.setState(StateStreaming)
		if m.pending.Thinking != nil {
			m.pending.Thinking.IsComplete = true
		}
	}
	if text == "" {
		return
	}
	m.contentSeen = true
	m.sink(text)
}

// Finish handles end-of-stream: the turn succeeds only if at least one
// non-empty content event was observed; otherwise it fails as empty.
func (m *Machine) Finish() {
	if m.State().Terminal() || m.State() == StateIdle {
		return
	}
	if !m.contentSeen {
		m.fail("")
		return
	}
	m.setState(StateSucceeded)
	m.log.Debug("turn succeeded", zap.Int64("session", m.session))
}

// Abort moves any non-terminal turn into the failed state. The caller is
// responsible for cancelling the underlying transport read.
func (m *Machine) Abort(reason string) {
	if m.State().Terminal() {
		return
	}
	if reason == "" {
		reason = "The request was cancelled."
	}
	m.fail(reason)
}

// FailTransport records a transport read failure.
func (m *Machine) FailTransport(err error) {
	if m.State().Terminal() {
		return
	}
	m.log.Warn("transport read failed",
		zap.Int64("session", m.session), zap.Error(err))
	m.fail("No response from the assistant. Please try again.")
}

func (m *Machine) fail(userText string) {
	if userText == "" {
		userText = "The assistant returned no content. Please try again."
	}
	m.failText = userText
	// The half-written pending message is discarded, never persisted.
	m.pending = nil
	m.setState(StateFailed)
	m.log.Debug("turn failed", zap.Int64("session", m.session))
}

// FinalMessage returns the message to persist for this turn: the frozen
// pending message on success, or a fresh assistant message carrying a
// short user-facing error description on failure. It returns nil while
// the turn is still open.
func (m *Machine) FinalMessage() *model.Message {
	switch m.State() {
	case StateSucceeded:
		return m.pending
	case StateFailed:
		return &model.Message{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Role:      model.RoleAssistant,
			Content:   m.failText,
			Timestamp: time.Now(),
		}
	}
	return nil
}
