package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/netpilot-ai/assistant-core/internal/llm"
	"github.com/netpilot-ai/assistant-core/internal/service"
	"github.com/netpilot-ai/assistant-core/internal/store"
	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

const testModel = "deepseek-chat"

type fakeClient struct {
	chunks       []string
	completeResp *llm.CompletionResponse
	completeErr  error
}

func (c *fakeClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return c.completeResp, c.completeErr
}

func (c *fakeClient) StreamChunks(ctx context.Context, req *llm.CompletionRequest, onChunk llm.ChunkHandler) error {
	for _, chunk := range c.chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeClient) Name() string     { return "deepseek" }
func (c *fakeClient) Models() []string { return []string{testModel} }

func newTestService(t *testing.T, client llm.Client) *service.ChatService {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	st := store.New(backend, logger.NewNop())
	return service.NewChatService(llm.NewRouter(client), st, logger.NewNop(), 0, 1, time.Millisecond)
}

func TestChatSend(t *testing.T) {
	svc := newTestService(t, &fakeClient{completeResp: &llm.CompletionResponse{Content: "Reboot the AP."}})
	h := NewChatHandler(svc, testModel, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"content":"wifi keeps dropping"}`))
	w := httptest.NewRecorder()
	h.Send(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Reboot the AP.") {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestChatSendRejectsBadInput(t *testing.T) {
	svc := newTestService(t, &fakeClient{})
	h := NewChatHandler(svc, testModel, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()
	h.Send(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"content":"   "}`))
	w = httptest.NewRecorder()
	h.Send(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank content: status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"content":"hi","model":"../deepseek-chat"}`))
	w = httptest.NewRecorder()
	h.Send(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("path-like model id: status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"content":"`+strings.Repeat("a", 100001)+`"}`))
	w = httptest.NewRecorder()
	h.Send(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized content: status %d", w.Code)
	}
}

func TestStreamRejectsInvalidInputBeforeStreaming(t *testing.T) {
	svc := newTestService(t, &fakeClient{chunks: []string{"hi"}})
	h := NewStreamHandler(svc, testModel, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream",
		strings.NewReader(`{"content":"hi","model":"bad model"}`))
	w := httptest.NewRecorder()
	h.StreamWithMessage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid model id: status %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct == "text/event-stream" {
		t.Fatal("rejection must not open an event stream")
	}
}

func TestStreamWithMessage(t *testing.T) {
	svc := newTestService(t, &fakeClient{chunks: []string{"All links up.", "data: [DONE]"}})
	h := NewStreamHandler(svc, testModel, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream",
		strings.NewReader(`{"content":"check trunk ports"}`))
	w := httptest.NewRecorder()
	h.StreamWithMessage(w, req)

	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	for _, event := range []string{"event: token", "event: message_complete", "event: done"} {
		if !strings.Contains(body, event) {
			t.Fatalf("missing %q in body:\n%s", event, body)
		}
	}
	if strings.Contains(body, "event: error") {
		t.Fatalf("unexpected error event:\n%s", body)
	}
}

func TestStreamEmitsErrorOnFailedTurn(t *testing.T) {
	// No content before the terminator: the turn fails in-band.
	svc := newTestService(t, &fakeClient{chunks: []string{"data: [DONE]"}})
	h := NewStreamHandler(svc, testModel, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream",
		strings.NewReader(`{"content":"hello"}`))
	w := httptest.NewRecorder()
	h.StreamWithMessage(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Fatalf("missing error event:\n%s", body)
	}
	if !strings.Contains(body, `"success":false`) {
		t.Fatalf("done event must report failure:\n%s", body)
	}
}

func TestConversationEndpoints(t *testing.T) {
	svc := newTestService(t, &fakeClient{completeResp: &llm.CompletionResponse{Content: "ok"}})
	if _, err := svc.Send(context.Background(), testModel, "hello"); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	h := NewConversationHandler(svc, logger.NewNop())

	r := chi.NewRouter()
	r.Get("/conversations/{model}", h.Get)
	r.Delete("/conversations/{model}", h.Delete)

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+testModel, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "hello") {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/conversations/"+testModel, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/conversations/"+testModel, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if strings.Contains(w.Body.String(), "hello") {
		t.Fatalf("history survived delete: %s", w.Body.String())
	}
}

func TestConversationRejectsInvalidModelID(t *testing.T) {
	svc := newTestService(t, &fakeClient{})
	h := NewConversationHandler(svc, logger.NewNop())

	r := chi.NewRouter()
	r.Get("/conversations/{model}", h.Get)
	r.Delete("/conversations/{model}", h.Delete)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/conversations/bad!id", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s with invalid model id: status %d", method, w.Code)
		}
	}
}

// failingWriter drops the connection after a fixed number of writes.
type failingWriter struct {
	header http.Header
	writes int
	failAt int
}

func (f *failingWriter) Header() http.Header {
	if f.header == nil {
		f.header = http.Header{}
	}
	return f.header
}

func (f *failingWriter) WriteHeader(int) {}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes >= f.failAt {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func (f *failingWriter) Flush() {}

func TestSSEWriterStopsAfterClientDisconnect(t *testing.T) {
	fw := &failingWriter{failAt: 2}
	sse := &sseWriter{w: fw, flusher: fw}

	if err := sse.send("token", map[string]string{"token": "a"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := sse.send("token", map[string]string{"token": "b"}); err == nil {
		t.Fatal("send on a broken connection must fail")
	}

	writes := fw.writes
	if err := sse.send("token", map[string]string{"token": "c"}); err == nil {
		t.Fatal("writer must stay failed")
	}
	if fw.writes != writes {
		t.Fatalf("bytes written after the first failure: %d -> %d", writes, fw.writes)
	}
	if sse.ok() {
		t.Fatal("ok must report the lost connection")
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready: %d", w.Code)
	}
}
