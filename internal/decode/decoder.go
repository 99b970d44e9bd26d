// Package decode turns raw transport chunks into typed stream events.
//
// Providers frame their streams differently: some emit bare text deltas,
// some emit SSE "data:" lines carrying JSON payloads, and a misbehaving
// upstream can leak runtime diagnostics into the stream. The decoder
// normalizes all of that into model.Event values and never fails a turn on
// its own; unreadable input degrades to best-effort text extraction.
package decode

import (
	"strings"
	"unicode/utf8"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

const (
	// Terminator is the explicit end-of-stream token used by
	// OpenAI-compatible SSE streams.
	Terminator = "[DONE]"

	// FramingMarker is the SSE data-line prefix that must never reach
	// the rendered message.
	FramingMarker = "data:"

	// ThinkingMarker prefixes plain-text reasoning deltas emitted by
	// providers that fold the reasoning channel into the text stream.
	ThinkingMarker = "🤔思考:"

	// splitThreshold is the rune count above which a single content
	// payload is subdivided for smoother incremental rendering.
	splitThreshold = 20
)

// Signatures of runtime diagnostics that indicate a broken upstream rather
// than assistant output. Matched chunks produce one synthetic error event
// instead of leaking the raw text to the user.
var errorSignatures = []string{
	"Traceback (most recent call last)",
	"TypeError:",
	"AttributeError:",
	"is not JSON serializable",
}

// Decoder converts raw transport chunks into ordered event sequences.
// It is stateless across calls except for a partial multi-byte character
// buffer: a chunk boundary may split a UTF-8 sequence, and the incomplete
// trailing bytes are held back until the next call completes them.
type Decoder struct {
	carry []byte
}

// New creates a decoder for one transport stream.
func New() *Decoder {
	return &Decoder{}
}

// Decode processes one raw chunk and returns the events it yields, in
// order. An empty result is normal for framing-only or whitespace chunks.
func (d *Decoder) Decode(chunk string) []model.Event {
	data := append(d.carry, chunk...)
	data, d.carry = splitIncompleteRune(data)
	if len(data) == 0 {
		return nil
	}
	return d.decodeText(string(data))
}

// Flush must be called when the transport is closed. It releases any bytes
// still held in the partial-character buffer as content.
func (d *Decoder) Flush() []model.Event {
	if len(d.carry) == 0 {
		return nil
	}
	text := string(d.carry)
	d.carry = nil
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return emitContent(nil, text)
}

func (d *Decoder) decodeText(text string) []model.Event {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Terminator tokens are recognized first and stripped before the
	// remaining text is considered. The done events are appended after
	// whatever payload shared the chunk, so trailing content is not lost.
	doneCount := strings.Count(text, Terminator)
	if doneCount > 0 {
		text = strings.ReplaceAll(text, Terminator, "")
	}

	var events []model.Event
	events = d.decodePayload(text, events)
	for i := 0; i < doneCount; i++ {
		events = append(events, model.DoneEvent())
	}
	return events
}

func (d *Decoder) decodePayload(text string, events []model.Event) []model.Event {
	if strings.TrimSpace(text) == "" {
		return events
	}

	// A leaked runtime diagnostic is summarized, never surfaced raw.
	for _, sig := range errorSignatures {
		if strings.Contains(text, sig) {
			return append(events, model.ErrorEventText("assistant stream returned malformed data"))
		}
	}

	framed := strings.Contains(text, FramingMarker)
	stripped := text
	for strings.Contains(stripped, FramingMarker) {
		stripped = strings.ReplaceAll(stripped, FramingMarker, "")
	}

	trimmed := strings.TrimSpace(stripped)
	if trimmed == "" {
		return events
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if evs, ok := decodeStructured(trimmed); ok {
			return append(events, evs...)
		}
		// Failed structured parse with JSON debris: keep only the
		// plain-text runs so fragments of framing never render.
		if plain := extractPlainText(trimmed); plain != "" {
			return emitText(events, plain)
		}
		return events
	}

	if framed {
		// Framing noise chunk: whitespace left behind by the stripped
		// markers is collapsed before the remainder is emitted.
		return emitText(events, strings.Join(strings.Fields(stripped), " "))
	}
	return emitText(events, text)
}

// emitText routes plain text to the thinking or content channel.
func emitText(events []model.Event, text string) []model.Event {
	if strings.TrimSpace(text) == "" {
		return events
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(text), ThinkingMarker); ok {
		if rest = strings.TrimSpace(rest); rest != "" {
			return append(events, model.ThinkingEvent(rest))
		}
		return events
	}
	return emitContent(events, text)
}

// emitContent emits text as one or more content events. Payloads above the
// split threshold are subdivided into roughly equal pieces; concatenation
// order is preserved exactly.
func emitContent(events []model.Event, text string) []model.Event {
	runes := []rune(text)
	if len(runes) <= splitThreshold {
		return append(events, model.ContentEvent(text))
	}
	parts := (len(runes) + splitThreshold - 1) / splitThreshold
	size := (len(runes) + parts - 1) / parts
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		events = append(events, model.ContentEvent(string(runes[start:end])))
	}
	return events
}

// extractPlainText keeps runs of letters, digits, and common punctuation,
// dropping JSON structure characters.
func extractPlainText(s string) string {
	var b strings.Builder
	var fields []string
	flush := func() {
		if b.Len() > 0 {
			if f := strings.TrimSpace(b.String()); f != "" {
				fields = append(fields, f)
			}
			b.Reset()
		}
	}
	for _, r := range s {
		switch r {
		case '{', '}', '[', ']', '"', ':', ',':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return strings.Join(fields, " ")
}

// splitIncompleteRune splits off a trailing incomplete UTF-8 sequence so it
// can be completed by the next chunk.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	if len(b) == 0 {
		return b, nil
	}
	i := len(b) - 1
	for back := 0; back < utf8.UTFMax && i >= 0; back++ {
		if utf8.RuneStart(b[i]) {
			break
		}
		i--
	}
	if i < 0 || utf8.FullRune(b[i:]) {
		return b, nil
	}
	return b[:i], b[i:]
}
