package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/harborview-labs/insight/internal/domain"
)

// ChatClient is a language-model provider over the OpenAI-compatible chat
// completions API. Implements domain.ChatModel.
type ChatClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ChatConfig holds the chat provider settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewChatClient creates an OpenAI-compatible chat completion provider.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Complete runs a non-streaming chat completion. Transient failures (429,
// 5xx) are retried with backoff; other errors return immediately.
func (c *ChatClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	apiReq := c.buildRequest(req)

	var content string
	err := retry.Do(
		func() error {
			resp, err := c.client.CreateChatCompletion(ctx, apiReq)
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("empty completion response: %w", domain.ErrModelProviderError)
			}
			content = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, domain.ErrModelProviderError) {
			return "", err
		}
		return "", parseAPIError("chat", err, domain.ErrModelProviderError)
	}
	return content, nil
}

// Stream opens a streaming chat completion and decodes provider deltas into
// domain stream events. The returned channel always terminates with exactly
// one EventMessageEnd; its Err field is set when the stream broke after
// partial output.
func (c *ChatClient) Stream(ctx context.Context, req domain.CompletionRequest) (<-chan domain.StreamEvent, error) {
	apiReq := c.buildRequest(req)
	apiReq.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, parseAPIError("chat stream", err, domain.ErrModelProviderError)
	}

	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				events <- domain.StreamEvent{Kind: domain.EventMessageEnd}
				return
			}
			if err != nil {
				c.logger.Warn("Chat stream broke", zap.Error(err))
				events <- domain.StreamEvent{
					Kind: domain.EventMessageEnd,
					Err:  parseAPIError("chat stream", err, domain.ErrModelProviderError),
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case events <- domain.StreamEvent{Kind: domain.EventContentDelta, Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (c *ChatClient) buildRequest(req domain.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// isTransient reports whether the API error is worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}
