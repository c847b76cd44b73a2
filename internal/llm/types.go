// Package llm provides the chat-completion backend used to answer questions.
// It wraps an OpenAI-compatible API (local or remote), handles retry logic,
// and normalizes responses into one explicit result type.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Service defines the completion generation interface.
type Service interface {
	// Complete generates a chat completion for the given messages.
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (GenerationResult, error)
}

// Config defines backend settings used to configure the client.
type Config struct {
	APIURL      string        // Chat-completions endpoint base URL
	APIKey      string        // Bearer token, may be empty for local servers
	Model       string        // Model identifier, may be empty for single-model servers
	Temperature float32       // Response randomness
	MaxTokens   int           // Response length cap, 0 for backend default
	Timeout     time.Duration // End-to-end call timeout
}

// TokenUsage reports prompt and completion token counts for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// GenerationResult is the normalized outcome of one completion call.
// HasRelevantContext is set by the caller that assembled the prompt; the
// backend itself only fills Text and Usage.
type GenerationResult struct {
	Text               string
	HasRelevantContext bool
	Usage              TokenUsage
}

// Client implements Service over an OpenAI-compatible HTTP API.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

const (
	httpClientTimeoutDivisor = 4
	minHTTPClientTimeout     = 10 * time.Second
	initialBackoffDuration   = 1 * time.Second
	retryMaxAttempts         = 3
)

// invalidRequestErrors lists known non-retryable API error types.
var invalidRequestErrors = []string{
	"invalid_request_error",
	"context_length_exceeded",
	"invalid_api_key",
	"organization_not_found",
}

var (
	ErrNilConfig     = errors.New("config is nil")
	ErrEmptyResponse = errors.New("empty response received")
	ErrNoChoices     = errors.New("no response choices available")
	ErrNoMessages    = errors.New("no messages provided")
)
