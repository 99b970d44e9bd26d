package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient serves GPT models through the OpenAI chat completion API.
// With a custom base URL it also serves any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	models []string
}

// NewOpenAIClient creates a client. baseURL is optional; models lists the
// identifiers this client should answer for.
func NewOpenAIClient(apiKey, baseURL string, models []string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if len(models) == 0 {
		models = []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		models: models,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns the model identifiers this provider serves.
func (c *OpenAIClient) Models() []string {
	return c.models
}

// Complete sends a non-streaming completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}
	if content == "" {
		return nil, &RequestError{Class: ClassMalformed, Detail: "response contains no message content"}
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// StreamChunks opens a streaming completion and forwards each provider
// payload to the handler as its JSON encoding, exactly as it arrived on
// the wire. Decoding is the chunk decoder's job, not this client's.
func (c *OpenAIClient) StreamChunks(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		payload, err := json.Marshal(response)
		if err != nil {
			continue
		}
		if err := onChunk(string(payload)); err != nil {
			return err
		}
	}
}

func (c *OpenAIClient) buildRequest(req *CompletionRequest, stream bool) openai.ChatCompletionRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
}
