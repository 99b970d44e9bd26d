package decode

import (
	"strings"
	"testing"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

func collect(t *testing.T, events []model.Event, typ model.EventType) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == typ {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func countType(events []model.Event, typ model.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestDecodePlainText(t *testing.T) {
	d := New()
	events := d.Decode("Hello")
	if len(events) != 1 || events[0].Type != model.EventContent || events[0].Text != "Hello" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDecodeConcatenationPreserved(t *testing.T) {
	chunks := []string{"The interface ", "Gi0/1 is ", "administratively down. ", "Check the config."}
	d := New()
	var got strings.Builder
	for _, c := range chunks {
		for _, ev := range d.Decode(c) {
			if ev.Type == model.EventContent {
				got.WriteString(ev.Text)
			}
		}
	}
	want := strings.Join(chunks, "")
	if got.String() != want {
		t.Fatalf("content concatenation changed: got %q, want %q", got.String(), want)
	}
}

func TestDecodeSubdividesLargePayload(t *testing.T) {
	text := strings.Repeat("abcde", 9) // 45 runes
	d := New()
	events := d.Decode(text)
	if len(events) < 2 {
		t.Fatalf("expected payload to be subdivided, got %d events", len(events))
	}
	var rebuilt strings.Builder
	for _, ev := range events {
		if ev.Type != model.EventContent {
			t.Fatalf("unexpected event type %q", ev.Type)
		}
		if n := len([]rune(ev.Text)); n > splitThreshold {
			t.Errorf("piece of %d runes exceeds threshold", n)
		}
		rebuilt.WriteString(ev.Text)
	}
	if rebuilt.String() != text {
		t.Fatalf("subdivision changed content: got %q", rebuilt.String())
	}
}

func TestDecodeThinkingMarker(t *testing.T) {
	d := New()
	events := d.Decode("🤔思考: checking interface counters")
	if len(events) != 1 || events[0].Type != model.EventThinking {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Text != "checking interface counters" {
		t.Fatalf("marker not stripped: %q", events[0].Text)
	}
}

func TestDecodeTerminatorAfterPayload(t *testing.T) {
	d := New()
	chunk := "data: {\"choices\":[{\"delta\":{\"content\":\"done now\"}}]}\n\ndata: [DONE]\n\n"
	events := d.Decode(chunk)
	if got := collect(t, events, model.EventContent); got != "done now" {
		t.Fatalf("content lost around terminator: %q", got)
	}
	if countType(events, model.EventDone) != 1 {
		t.Fatalf("expected one done event, got %+v", events)
	}
	if events[len(events)-1].Type != model.EventDone {
		t.Fatalf("done must follow the payload it shared a chunk with: %+v", events)
	}
}

func TestDecodeFramingOnlyChunk(t *testing.T) {
	d := New()
	if events := d.Decode("data:"); len(events) != 0 {
		t.Fatalf("framing-only chunk produced events: %+v", events)
	}
	if events := d.Decode("data: \n\n"); len(events) != 0 {
		t.Fatalf("framing and whitespace produced events: %+v", events)
	}
}

func TestDecodeFramedPlainText(t *testing.T) {
	d := New()
	events := d.Decode("data: hello data: world")
	if got := collect(t, events, model.EventContent); got != "hello world" {
		t.Fatalf("framed text mishandled: %q", got)
	}
	for _, ev := range events {
		if strings.Contains(ev.Text, FramingMarker) {
			t.Fatalf("framing marker leaked into event text: %q", ev.Text)
		}
	}
}

func TestDecodeRuntimeDiagnostic(t *testing.T) {
	d := New()
	events := d.Decode("TypeError: Object of type Response is not JSON serializable")
	if len(events) != 1 || events[0].Type != model.EventError {
		t.Fatalf("diagnostic not converted to error event: %+v", events)
	}
	if strings.Contains(events[0].Text, "TypeError") {
		t.Fatalf("raw diagnostic leaked: %q", events[0].Text)
	}
}

func TestDecodeEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		typ   model.EventType
		text  string
	}{
		{"content tag", `{"type":"content","data":{"content":"hi"}}`, model.EventContent, "hi"},
		{"thinking tag", `{"type":"thinking","data":{"thinking":"hmm"}}`, model.EventThinking, "hmm"},
		{"event label", `{"event":"content","data":{"text":"alt"}}`, model.EventContent, "alt"},
		{"error tag", `{"type":"error","data":{"error":"boom"}}`, model.EventError, "boom"},
		{"done tag", `{"type":"done"}`, model.EventDone, ""},
		{"block delta", `{"type":"content_block_delta","data":{"delta":{"text":"d"}}}`, model.EventContent, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := New().Decode(tt.chunk)
			if len(events) != 1 || events[0].Type != tt.typ || events[0].Text != tt.text {
				t.Fatalf("got %+v, want type %q text %q", events, tt.typ, tt.text)
			}
		})
	}
}

func TestDecodeChoicesShape(t *testing.T) {
	d := New()
	events := d.Decode(`{"choices":[{"delta":{"reasoning_content":"think","content":"answer"}}]}`)
	if len(events) != 2 {
		t.Fatalf("expected thinking then content, got %+v", events)
	}
	if events[0].Type != model.EventThinking || events[0].Text != "think" {
		t.Fatalf("reasoning must precede content: %+v", events)
	}
	if events[1].Type != model.EventContent || events[1].Text != "answer" {
		t.Fatalf("unexpected content event: %+v", events)
	}

	events = New().Decode(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`)
	if len(events) != 1 || events[0].Type != model.EventDone {
		t.Fatalf("finish_reason alone must signal done: %+v", events)
	}
}

func TestDecodeErrorBody(t *testing.T) {
	events := New().Decode(`{"error":{"message":"rate limited"}}`)
	if len(events) != 1 || events[0].Type != model.EventError || events[0].Text != "rate limited" {
		t.Fatalf("unexpected events: %+v", events)
	}

	events = New().Decode(`{"error":"plain text"}`)
	if len(events) != 1 || events[0].Type != model.EventError || events[0].Text != "plain text" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDecodeUnrecognizedJSON(t *testing.T) {
	if events := New().Decode("{}"); len(events) != 0 {
		t.Fatalf("empty object produced events: %+v", events)
	}
	// Unparseable JSON debris degrades to plain-text extraction.
	events := New().Decode(`{"partial": "keep this`)
	if got := collect(t, events, model.EventContent); !strings.Contains(got, "keep this") {
		t.Fatalf("plain text not recovered from debris: %+v", events)
	}
	for _, ev := range events {
		if strings.ContainsAny(ev.Text, "{}\"") {
			t.Fatalf("JSON structure leaked: %q", ev.Text)
		}
	}
}

func TestDecodeSplitMultibyteRune(t *testing.T) {
	full := "你好"
	raw := []byte(full)
	d := New()

	events := d.Decode(string(raw[:2])) // mid-rune boundary
	if len(events) != 0 {
		t.Fatalf("incomplete rune must be held back: %+v", events)
	}
	events = d.Decode(string(raw[2:]))
	if got := collect(t, events, model.EventContent); got != full {
		t.Fatalf("rune reassembly failed: got %q, want %q", got, full)
	}
}

func TestFlushReleasesCarry(t *testing.T) {
	raw := []byte("界")
	d := New()
	if events := d.Decode(string(raw[:1])); len(events) != 0 {
		t.Fatalf("partial byte emitted early: %+v", events)
	}
	events := d.Flush()
	if len(events) != 1 || events[0].Type != model.EventContent {
		t.Fatalf("flush must release held bytes: %+v", events)
	}
	if d.Flush() != nil {
		t.Fatal("second flush must be empty")
	}
}

func TestDecodeEmptyAndWhitespace(t *testing.T) {
	d := New()
	if events := d.Decode(""); len(events) != 0 {
		t.Fatalf("empty chunk produced events: %+v", events)
	}
	if events := d.Decode("   \n\t"); len(events) != 0 {
		t.Fatalf("whitespace chunk produced events: %+v", events)
	}
}
