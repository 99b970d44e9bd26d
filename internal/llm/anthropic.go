package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient serves Claude models.
type AnthropicClient struct {
	client *anthropic.Client
	models []string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string, models []string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if len(models) == 0 {
		models = []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022"}
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: models,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns the model identifiers this provider serves.
func (c *AnthropicClient) Models() []string {
	return c.models
}

// Complete sends a non-streaming completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		return nil, &RequestError{Class: ClassMalformed, Detail: "response contains no text blocks"}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   int(resp.Usage.InputTokens),
		TokensOut:  int(resp.Usage.OutputTokens),
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// StreamChunks opens a streaming completion. Claude text deltas are
// forwarded as bare text chunks; the end of the event stream closes the
// chunk source.
func (c *AnthropicClient) StreamChunks(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) error {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))

	for stream.Next() {
		event := stream.Current()
		if event.Type != anthropic.MessageStreamEventTypeContentBlockDelta {
			continue
		}
		delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta)
		if !ok || delta.Type != "text_delta" || delta.Text == "" {
			continue
		}
		if err := onChunk(delta.Text); err != nil {
			return err
		}
	}
	return stream.Err()
}

func (c *AnthropicClient) buildParams(req *CompletionRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.F(req.Model),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(messages),
	}
}
