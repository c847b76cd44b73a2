// Package qa answers user questions from collected chat history. It searches
// one tenant's store for relevant messages, assembles them into a prompt and
// asks the completion backend, always returning a user-presentable answer.
package qa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"

	"peanut/internal/database"
	"peanut/internal/llm"
	"peanut/internal/search"
)

const defaultContextLimit = 30

// kst renders context timestamps in the community's local time.
var kst = time.FixedZone("KST", 9*60*60)

// EngineResolver returns the search engine for one tenant.
type EngineResolver func(guildID string) (*search.Engine, error)

// Service answers questions against one tenant's collected history.
type Service struct {
	engines EngineResolver
	backend llm.Service
	logger  *slog.Logger
}

// New creates a question-answering service.
func New(engines EngineResolver, backend llm.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		engines: engines,
		backend: backend,
		logger:  logger.With("component", "qa"),
	}
}

// Answer bundles the generated reply with the context that produced it.
type Answer struct {
	llm.GenerationResult

	// Context lists the messages that were included in the prompt, in the
	// search engine's relevance order.
	Context []database.Message

	// Keywords are the search keywords extracted from the question.
	Keywords []string
}

// Ask answers a question from guildID's collected messages. It never returns
// an error: search degradations fall back to recent history and a failed
// generation call yields a short apologetic reply with the error detail.
func (s *Service) Ask(ctx context.Context, guildID, question string, limit int) Answer {
	if limit <= 0 {
		limit = defaultContextLimit
	}

	engine, err := s.engines(guildID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error resolving tenant search engine", "guild_id", guildID, "error", err)
		return Answer{GenerationResult: llm.GenerationResult{Text: fmt.Sprintf(apologyFormat, err)}}
	}

	found := engine.FindRelevant(ctx, question, limit)
	hasRelevant := len(found.Messages) > 0 && !found.FromFallback

	s.logger.InfoContext(ctx, "Question context assembled",
		"guild_id", guildID,
		"context_size", len(found.Messages),
		"from_fallback", found.FromFallback,
		"keywords", found.Keywords)

	messages := buildPrompt(question, found.Messages, hasRelevant)

	result, err := s.backend.Complete(ctx, messages)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error generating answer", "guild_id", guildID, "error", err)
		return Answer{
			GenerationResult: llm.GenerationResult{Text: fmt.Sprintf(apologyFormat, err)},
			Context:          found.Messages,
			Keywords:         found.Keywords,
		}
	}

	result.HasRelevantContext = hasRelevant
	return Answer{GenerationResult: result, Context: found.Messages, Keywords: found.Keywords}
}

// buildPrompt assembles the chat-completion message list: the system prompt,
// the context messages oldest first with a date prefix, then the question.
func buildPrompt(question string, contextMessages []database.Message, hasRelevant bool) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(contextMessages)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})

	ordered := make([]database.Message, len(contextMessages))
	copy(ordered, contextMessages)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].CreatedAt.Before(ordered[b].CreatedAt)
	})

	for _, msg := range ordered {
		if msg.Content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: formatContextMessage(msg),
		})
	}

	enhanced := fmt.Sprintf(enhancedQueryFormat, question)
	if !hasRelevant {
		enhanced += noContextNote
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: enhanced,
	})
	return messages
}

// formatContextMessage prefixes content with its creation date. Author and
// channel details never reach the prompt.
func formatContextMessage(msg database.Message) string {
	if msg.CreatedAt.IsZero() {
		return msg.Content
	}
	return fmt.Sprintf("[%s] %s", msg.CreatedAt.In(kst).Format("2006-01-02"), msg.Content)
}
