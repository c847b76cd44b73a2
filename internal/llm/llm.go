package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// New creates a backend client for an OpenAI-compatible chat-completions API.
// Local servers such as LM Studio accept any API key, so an empty key is
// replaced with a placeholder to satisfy the SDK.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "not-needed"
	}

	apiCfg := openai.DefaultConfig(apiKey)
	if cfg.APIURL != "" {
		apiCfg.BaseURL = cfg.APIURL
	}
	httpClientTimeout := max(cfg.Timeout/httpClientTimeoutDivisor, minHTTPClientTimeout)
	apiCfg.HTTPClient = &http.Client{
		Timeout: httpClientTimeout,
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete implements the Service interface. It performs one chat-completion
// call with retry and exponential backoff for transient failures, and
// normalizes the response into a GenerationResult.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (GenerationResult, error) {
	if len(messages) == 0 {
		return GenerationResult{}, ErrNoMessages
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	return retryWithBackoff(callCtx, func() (GenerationResult, error) {
		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			return GenerationResult{}, fmt.Errorf("chat completion failed: %w", err)
		}

		if len(resp.Choices) == 0 {
			return GenerationResult{}, ErrNoChoices
		}

		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if text == "" {
			return GenerationResult{}, ErrEmptyResponse
		}

		return GenerationResult{
			Text: text,
			Usage: TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			},
		}, nil
	})
}

// isPermanentAPIError identifies non-retryable API errors by checking the
// error message against known error types.
func isPermanentAPIError(err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	errStr := err.Error()
	for _, errType := range invalidRequestErrors {
		if strings.Contains(errStr, errType) {
			return true, fmt.Errorf("permanent API error: %w", err)
		}
	}

	return false, err
}

// retryWithBackoff retries transient completion failures up to
// retryMaxAttempts times with exponentially increasing delays.
func retryWithBackoff(ctx context.Context, op func() (GenerationResult, error)) (GenerationResult, error) {
	attempt := 0

	var lastErr error

	backoff := initialBackoffDuration

	for attempt < retryMaxAttempts {
		select {
		case <-ctx.Done():
			return GenerationResult{}, fmt.Errorf("context error: %w", ctx.Err())
		default:
		}

		result, err := op()
		if err == nil {
			return result, nil
		}

		isPermanent, wrappedErr := isPermanentAPIError(err)
		if isPermanent {
			return GenerationResult{}, wrappedErr
		}

		lastErr = err
		attempt++

		if attempt < retryMaxAttempts {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()

				return GenerationResult{}, fmt.Errorf("context error: %w", ctx.Err())
			case <-timer.C:
				backoff *= 2
			}
		}
	}

	return GenerationResult{}, fmt.Errorf("all %d API attempts failed: %w", retryMaxAttempts, lastErr)
}
