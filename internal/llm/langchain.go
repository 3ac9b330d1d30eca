package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcschema "github.com/tmc/langchaingo/schema"

	"github.com/solvik/meetwise/pkg/schema"
)

const (
	maxRetries     = 3
	retryBaseDelay = 2 * time.Second
)

// Client implements Service on top of a langchaingo model.
type Client struct {
	model      llms.Model
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient wraps the given model.
func NewClient(model llms.Model, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{model: model, logger: logger, retryDelay: retryBaseDelay}
}

// Generate runs one completion. Rate-limit responses are retried with
// linear backoff; other errors return immediately.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(lcschema.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(lcschema.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			c.logger.WarnContext(ctx, "rate limited, retrying", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			if isRateLimit(err) {
				lastErr = err
				continue
			}
			return "", schema.NewError(schema.ErrCodeLLM, "generation failed").WithCause(err)
		}
		if len(resp.Choices) == 0 {
			return "", schema.NewError(schema.ErrCodeLLM, "model returned no choices")
		}
		return resp.Choices[0].Content, nil
	}
	return "", schema.NewError(schema.ErrCodeLLM, "rate limit retries exhausted").WithCause(lastErr)
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota")
}
