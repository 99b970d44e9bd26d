package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DeepSeekClient talks to the DeepSeek chat completion API over raw HTTP.
// Unlike the SDK-backed providers it exposes the wire stream unmodified:
// the streaming path yields raw SSE lines, framing and all, which is
// where the decoder's degraded-input handling earns its keep.
type DeepSeekClient struct {
	http    *resty.Client
	baseURL string
	models  []string
}

// NewDeepSeekClient creates a client for an OpenAI-compatible DeepSeek
// endpoint.
func NewDeepSeekClient(apiKey, baseURL string, timeout time.Duration, models []string) (*DeepSeekClient, error) {
	if apiKey == "" {
		return nil, errors.New("DeepSeek API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	if len(models) == 0 {
		models = []string{"deepseek-chat", "deepseek-reasoner"}
	}

	client := resty.New().
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &DeepSeekClient{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		models:  models,
	}, nil
}

// Name returns the provider name.
func (c *DeepSeekClient) Name() string {
	return "deepseek"
}

// Models returns the model identifiers this provider serves.
func (c *DeepSeekClient) Models() []string {
	return c.models
}

type deepseekPayload struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a non-streaming completion request. A response missing
// the expected content field is repaired from the alternate paths some
// gateways use before being declared malformed.
func (c *DeepSeekClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var parsed deepseekResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.buildPayload(req, false)).
		SetResult(&parsed).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, &RequestError{Class: ClassNetwork, Detail: err.Error(), Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &RequestError{
			Class:  classifyStatus(resp.StatusCode()),
			Status: resp.StatusCode(),
			Detail: strings.TrimSpace(resp.String()),
		}
	}

	content, stopReason := extractContent(&parsed)
	if content == "" {
		return nil, &RequestError{Class: ClassMalformed, Detail: "response contains no content field"}
	}

	respModel := parsed.Model
	if respModel == "" {
		respModel = req.Model
	}

	return &CompletionResponse{
		Content:    content,
		Model:      respModel,
		TokensIn:   parsed.Usage.PromptTokens,
		TokensOut:  parsed.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// extractContent tries the expected field first, then the known alternate
// paths, in fixed order.
func extractContent(resp *deepseekResponse) (content, stopReason string) {
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		stopReason = choice.FinishReason
		if choice.Message.Content != "" {
			return choice.Message.Content, stopReason
		}
		if choice.Text != "" {
			return choice.Text, stopReason
		}
	}
	return resp.Content, stopReason
}

// StreamChunks opens a streaming completion and forwards every SSE line
// to the handler untouched.
func (c *DeepSeekClient) StreamChunks(ctx context.Context, req *CompletionRequest, onChunk ChunkHandler) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.buildPayload(req, true)).
		SetDoNotParseResponse(true).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		return &RequestError{Class: ClassNetwork, Detail: err.Error(), Err: err}
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		detail, _ := io.ReadAll(io.LimitReader(body, 4096))
		return &RequestError{
			Class:  classifyStatus(resp.StatusCode()),
			Status: resp.StatusCode(),
			Detail: strings.TrimSpace(string(detail)),
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := onChunk(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (c *DeepSeekClient) buildPayload(req *CompletionRequest, stream bool) deepseekPayload {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	return deepseekPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
