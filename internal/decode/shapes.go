package decode

import (
	"encoding/json"
	"strings"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

// Known provider payload shapes, tried in fixed order. Each shape is a
// closed struct; recognition relies on required fields being present, not
// on probing arbitrary keys.

// envelope is the typed {type, data} event wrapper used by the gateway's
// own stream relay. Some emitters label the tag "event" instead of "type".
type envelope struct {
	Type  string       `json:"type"`
	Event string       `json:"event"`
	Data  envelopeData `json:"data"`
}

type envelopeData struct {
	Content  string `json:"content"`
	Thinking string `json:"thinking"`
	Text     string `json:"text"`
	Error    string `json:"error"`
	Delta    struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// choiceList is the OpenAI-compatible completion chunk: either a finished
// message or an incremental delta, optionally carrying a separate
// reasoning channel.
type choiceList struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// errorBody is a bare {"error": ...} payload; the error value may be a
// string or an object with a message field.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

// decodeStructured inspects a JSON payload against the known shapes.
// ok is false when the text is not valid JSON or no shape matched.
func decodeStructured(text string) ([]model.Event, bool) {
	if strings.HasPrefix(text, "[") {
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(text), &elems); err != nil {
			return nil, false
		}
		var events []model.Event
		matched := false
		for _, el := range elems {
			if evs, ok := decodeObject(el); ok {
				events = append(events, evs...)
				matched = true
			}
		}
		return events, matched
	}
	return decodeObject(json.RawMessage(text))
}

func decodeObject(raw json.RawMessage) ([]model.Event, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	if tag := firstNonEmpty(env.Type, env.Event); tag != "" {
		if evs, ok := decodeEnvelope(tag, env.Data); ok {
			return evs, true
		}
	}

	var cl choiceList
	if err := json.Unmarshal(raw, &cl); err == nil && len(cl.Choices) > 0 {
		return decodeChoices(cl), true
	}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && len(eb.Error) > 0 && string(eb.Error) != "null" {
		return []model.Event{model.ErrorEventText(errorMessage(eb.Error))}, true
	}

	return nil, false
}

func decodeEnvelope(tag string, data envelopeData) ([]model.Event, bool) {
	switch tag {
	case "content":
		if text := firstNonEmpty(data.Content, data.Text); text != "" {
			return emitContent(nil, text), true
		}
		return nil, true
	case "thinking":
		if text := firstNonEmpty(data.Thinking, data.Text); text != "" {
			return []model.Event{model.ThinkingEvent(text)}, true
		}
		return nil, true
	case "error":
		msg := data.Error
		if msg == "" {
			msg = "assistant stream reported an error"
		}
		return []model.Event{model.ErrorEventText(msg)}, true
	case "done", "finish", "message_stop":
		return []model.Event{model.DoneEvent()}, true
	case "content_block_delta":
		if data.Delta.Text != "" {
			return emitContent(nil, data.Delta.Text), true
		}
		return nil, true
	}
	return nil, false
}

func decodeChoices(cl choiceList) []model.Event {
	var events []model.Event
	choice := cl.Choices[0]

	// Reasoning always precedes content from the same payload.
	if choice.Delta.ReasoningContent != "" {
		events = append(events, model.ThinkingEvent(choice.Delta.ReasoningContent))
	}
	if text := firstNonEmpty(choice.Delta.Content, choice.Message.Content); text != "" {
		events = emitContent(events, text)
	} else if len(events) == 0 && choice.FinishReason != "" {
		events = append(events, model.DoneEvent())
	}
	return events
}

func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
		return obj.Message
	}
	return "assistant stream reported an error"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
