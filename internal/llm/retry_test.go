package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/netpilot-ai/assistant-core/pkg/logger"
)

type scriptedClient struct {
	responses []func() (*CompletionResponse, error)
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	step := c.responses[c.calls]
	c.calls++
	return step()
}

func (c *scriptedClient) StreamChunks(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) error {
	return errors.New("not implemented")
}

func (c *scriptedClient) Name() string     { return "scripted" }
func (c *scriptedClient) Models() []string { return nil }

func serverFailure() (*CompletionResponse, error) {
	return nil, &RequestError{Class: ClassServer, Status: 503, Detail: "overloaded"}
}

func success() (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}

func validRequest() *CompletionRequest {
	return &CompletionRequest{
		Model:    "deepseek-chat",
		Messages: []ChatMessage{{Role: "user", Content: "hello"}},
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	client := &scriptedClient{responses: []func() (*CompletionResponse, error){
		serverFailure, serverFailure, success,
	}}
	var delays []time.Duration
	rc := NewRetryClient(client, logger.NewNop(),
		WithBaseDelay(100*time.Millisecond),
		WithSleep(func(d time.Duration) { delays = append(delays, d) }))

	resp, err := rc.SendWithRetry(context.Background(), validRequest(), 3)
	if err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("content: %q", resp.Content)
	}
	if client.calls != 3 {
		t.Fatalf("attempts: %d", client.calls)
	}
	// Linear backoff: attempt number times the base delay.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays: %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: got %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestValidationFailureNotRetried(t *testing.T) {
	client := &scriptedClient{responses: []func() (*CompletionResponse, error){
		func() (*CompletionResponse, error) {
			return nil, &RequestError{Class: ClassValidation, Status: 422, Detail: "bad payload"}
		},
	}}
	slept := 0
	rc := NewRetryClient(client, logger.NewNop(),
		WithSleep(func(time.Duration) { slept++ }))

	_, err := rc.SendWithRetry(context.Background(), validRequest(), 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 || slept != 0 {
		t.Fatalf("validation failure retried: calls=%d sleeps=%d", client.calls, slept)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Detail != "bad payload" {
		t.Fatalf("server detail lost: %v", err)
	}
}

func TestMalformedResponseNotRetried(t *testing.T) {
	client := &scriptedClient{responses: []func() (*CompletionResponse, error){
		func() (*CompletionResponse, error) {
			return nil, &RequestError{Class: ClassMalformed, Detail: "no content field"}
		},
	}}
	rc := NewRetryClient(client, logger.NewNop(), WithSleep(func(time.Duration) {}))

	if _, err := rc.SendWithRetry(context.Background(), validRequest(), 3); err == nil {
		t.Fatal("expected error")
	}
	if client.calls != 1 {
		t.Fatalf("malformed response retried: calls=%d", client.calls)
	}
}

func TestExhaustionReturnsLastError(t *testing.T) {
	client := &scriptedClient{responses: []func() (*CompletionResponse, error){
		serverFailure, serverFailure,
	}}
	rc := NewRetryClient(client, logger.NewNop(), WithSleep(func(time.Duration) {}))

	_, err := rc.SendWithRetry(context.Background(), validRequest(), 2)
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if client.calls != 2 {
		t.Fatalf("attempts: %d", client.calls)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != 503 {
		t.Fatalf("last error not returned unchanged: %v", err)
	}
}

func TestPreconditionsSkipNetwork(t *testing.T) {
	client := &scriptedClient{}
	rc := NewRetryClient(client, logger.NewNop())

	_, err := rc.Send(context.Background(), &CompletionRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	if Classify(err) != ClassValidation {
		t.Fatalf("missing model: %v", err)
	}

	_, err = rc.Send(context.Background(), &CompletionRequest{Model: "deepseek-chat", Messages: []ChatMessage{{Role: "user", Content: "   "}}})
	if Classify(err) != ClassValidation {
		t.Fatalf("blank messages: %v", err)
	}

	if client.calls != 0 {
		t.Fatalf("validation failures reached the network: %d calls", client.calls)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"explicit class", &RequestError{Class: ClassServer}, ClassServer},
		{"deadline", context.DeadlineExceeded, ClassNetwork},
		{"unknown", errors.New("weird"), ClassNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Classification
	}{
		{500, ClassServer},
		{503, ClassServer},
		{429, ClassServer},
		{422, ClassValidation},
		{400, ClassValidation},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if msg := UserMessage(&RequestError{Class: ClassNetwork}); msg != "No response from the assistant service." {
		t.Fatalf("network message: %q", msg)
	}
	if msg := UserMessage(&RequestError{Class: ClassValidation, Detail: "model required"}); msg != "Invalid request: model required" {
		t.Fatalf("validation message: %q", msg)
	}
}
