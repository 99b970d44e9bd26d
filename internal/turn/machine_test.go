package turn

import (
	"errors"
	"strings"
	"testing"

	"github.com/netpilot-ai/assistant-core/internal/model"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

func newTestMachine() (*Machine, *strings.Builder) {
	var sunk strings.Builder
	m := NewMachine(func(text string) { sunk.WriteString(text) }, logger.NewNop())
	return m, &sunk
}

func TestBeginValidation(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.Begin("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank input: got %v, want ErrEmptyMessage", err)
	}
	if _, err := m.Begin(strings.Repeat("x", maxUserTextLen+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("oversized input: got %v, want ErrMessageTooLong", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("rejected input must leave machine idle, got %v", m.State())
	}

	pending, err := m.Begin("why is ospf down")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if pending == nil || pending.Role != model.RoleAssistant || pending.ID == "" {
		t.Fatalf("unexpected pending message: %+v", pending)
	}
	if m.State() != StateAwaiting {
		t.Fatalf("state after Begin: %v", m.State())
	}

	if _, err := m.Begin("again"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("second Begin: got %v, want ErrTurnInFlight", err)
	}
}

func TestThinkingThenContentLifecycle(t *testing.T) {
	m, sunk := newTestMachine()
	pending, _ := m.Begin("check bgp neighbors")

	m.Apply(model.ThinkingEvent("inspecting "))
	if m.State() != StateThinking {
		t.Fatalf("state after thinking: %v", m.State())
	}
	m.Apply(model.ThinkingEvent("session table"))
	if pending.Thinking == nil || pending.Thinking.Content != "inspecting session table" {
		t.Fatalf("thinking not accumulated: %+v", pending.Thinking)
	}
	if pending.Thinking.IsComplete {
		t.Fatal("thinking sealed before content began")
	}

	m.Apply(model.ContentEvent("Neighbor 10.0.0.2 "))
	if m.State() != StateStreaming {
		t.Fatalf("state after content: %v", m.State())
	}
	if !pending.Thinking.IsComplete {
		t.Fatal("thinking must be sealed when streaming begins")
	}

	// Late reasoning deltas are dropped once the channel froze.
	m.Apply(model.ThinkingEvent("ignored"))
	if pending.Thinking.Content != "inspecting session table" {
		t.Fatalf("frozen thinking mutated: %q", pending.Thinking.Content)
	}

	m.Apply(model.ContentEvent("is idle."))
	m.Finish()
	if m.State() != StateSucceeded {
		t.Fatalf("state after finish: %v", m.State())
	}
	if sunk.String() != "Neighbor 10.0.0.2 is idle." {
		t.Fatalf("sink received %q", sunk.String())
	}
	if final := m.FinalMessage(); final != pending {
		t.Fatalf("success must finalize the pending message, got %+v", final)
	}
}

func TestEmptyStreamFails(t *testing.T) {
	m, _ := newTestMachine()
	m.Begin("hello")
	m.Apply(model.ThinkingEvent("only reasoning"))
	m.Finish()

	if m.State() != StateFailed {
		t.Fatalf("empty content must fail the turn, got %v", m.State())
	}
	if m.Pending() != nil {
		t.Fatal("failed turn must discard the pending message")
	}
	final := m.FinalMessage()
	if final == nil || final.Content == "" || final.Role != model.RoleAssistant {
		t.Fatalf("failure must substitute an error message: %+v", final)
	}
	if final.Thinking != nil {
		t.Fatalf("substituted message must not carry thinking: %+v", final)
	}
}

func TestEmptyContentEventsDoNotCount(t *testing.T) {
	m, _ := newTestMachine()
	m.Begin("hello")
	m.Apply(model.ContentEvent(""))
	if m.State() != StateStreaming {
		t.Fatalf("empty content must still advance the state, got %v", m.State())
	}
	m.Finish()
	if m.State() != StateFailed {
		t.Fatalf("turn with only empty content must fail, got %v", m.State())
	}
}

func TestErrorEventFailsTurn(t *testing.T) {
	m, sunk := newTestMachine()
	m.Begin("hello")
	m.Apply(model.ContentEvent("partial "))
	m.Apply(model.ErrorEventText("upstream exploded"))

	if m.State() != StateFailed {
		t.Fatalf("state: %v", m.State())
	}
	if final := m.FinalMessage(); final.Content != "upstream exploded" {
		t.Fatalf("final content: %q", final.Content)
	}
	// Events after a terminal state are dropped.
	m.Apply(model.ContentEvent("late"))
	if sunk.String() != "partial " {
		t.Fatalf("post-terminal event reached sink: %q", sunk.String())
	}
}

func TestAbortAndTransportFailure(t *testing.T) {
	m, _ := newTestMachine()
	m.Begin("hello")
	m.Abort("The request was cancelled.")
	if m.State() != StateFailed {
		t.Fatalf("state after abort: %v", m.State())
	}
	if final := m.FinalMessage(); final.Content != "The request was cancelled." {
		t.Fatalf("abort message: %q", final.Content)
	}

	m2, _ := newTestMachine()
	m2.Begin("hello")
	m2.FailTransport(errors.New("connection reset"))
	final := m2.FinalMessage()
	if final == nil || strings.Contains(final.Content, "connection reset") {
		t.Fatalf("transport detail must not leak to the user: %+v", final)
	}
}

func TestFinalMessageNilWhileOpen(t *testing.T) {
	m, _ := newTestMachine()
	if m.FinalMessage() != nil {
		t.Fatal("idle machine has no final message")
	}
	m.Begin("hello")
	if m.FinalMessage() != nil {
		t.Fatal("open turn has no final message")
	}
}

func TestGuardSingleFlight(t *testing.T) {
	var g Guard
	if !g.Acquire() {
		t.Fatal("first acquire must succeed")
	}
	if g.Acquire() {
		t.Fatal("second acquire must fail while in flight")
	}
	if !g.InFlight() {
		t.Fatal("guard must report in flight")
	}
	g.Release()
	if !g.Acquire() {
		t.Fatal("acquire after release must succeed")
	}
}
