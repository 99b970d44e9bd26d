package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/netpilot-ai/assistant-core/pkg/logger"
	"github.com/netpilot-ai/assistant-core/pkg/metrics"
)

const (
	// DefaultMaxAttempts bounds the non-streaming send path.
	DefaultMaxAttempts = 3

	// defaultBaseDelay is the unit of the linear backoff.
	defaultBaseDelay = 500 * time.Millisecond
)

// RetryClient is the non-streaming fallback request path: it validates the
// request before any network attempt, classifies failures, and retries
// transient ones with linear backoff.
type RetryClient struct {
	client      Client
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(time.Duration)
	log         *logger.Logger
}

// RetryOption configures a RetryClient.
type RetryOption func(*RetryClient)

// WithBaseDelay overrides the backoff unit.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(c *RetryClient) { c.baseDelay = d }
}

// WithSleep replaces the delay function; tests inject a recorder.
func WithSleep(fn func(time.Duration)) RetryOption {
	return func(c *RetryClient) { c.sleep = fn }
}

// NewRetryClient wraps a provider client with the retry policy.
func NewRetryClient(client Client, log *logger.Logger, opts ...RetryOption) *RetryClient {
	c := &RetryClient{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		sleep:       time.Sleep,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs one attempt after validating preconditions. A request
// that fails validation never reaches the network.
func (c *RetryClient) Send(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		return nil, &RequestError{Class: ClassValidation, Detail: "model identifier is required"}
	}
	formatted := sanitizeMessages(req.Messages)
	if len(formatted) == 0 {
		return nil, &RequestError{Class: ClassValidation, Detail: "no usable messages after formatting"}
	}

	attempt := *req
	attempt.Messages = formatted
	return c.client.Complete(ctx, &attempt)
}

// SendWithRetry retries Send on server and network failures, waiting
// attempt*baseDelay between attempts. On exhaustion the last error is
// returned unchanged.
func (c *RetryClient) SendWithRetry(ctx context.Context, req *CompletionRequest, maxAttempts int) (*CompletionResponse, error) {
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.Send(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		class := Classify(err)
		metrics.RequestFailures.WithLabelValues(req.Model, string(class)).Inc()
		if !retryable(class) {
			c.log.Warn("request failed, not retrying",
				zap.String("model", req.Model),
				zap.String("class", string(class)),
				zap.Error(err))
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.baseDelay
		c.log.Warn("request failed, retrying",
			zap.String("model", req.Model),
			zap.String("class", string(class)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		metrics.RequestRetries.WithLabelValues(req.Model).Inc()
		c.sleep(delay)
	}
	return nil, lastErr
}
