package model

// EventType represents the type of a decoded stream event.
type EventType string

const (
	EventContent  EventType = "content"
	EventThinking EventType = "thinking"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one decoded unit derived from raw transport chunks. Events are
// transient: they are produced and consumed within a single turn and only
// their cumulative effect on a message is ever persisted.
type Event struct {
	Type EventType
	Text string
}

// ContentEvent returns a content event carrying text.
func ContentEvent(text string) Event { return Event{Type: EventContent, Text: text} }

// ThinkingEvent returns a reasoning event carrying text.
func ThinkingEvent(text string) Event { return Event{Type: EventThinking, Text: text} }

// ErrorEventText returns an error event with a short human-readable message.
func ErrorEventText(msg string) Event { return Event{Type: EventError, Text: msg} }

// DoneEvent marks the end of the assistant turn.
func DoneEvent() Event { return Event{Type: EventDone} }
