package qa_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peanut/internal/database"
	"peanut/internal/llm"
	"peanut/internal/qa"
	"peanut/internal/search"
)

type fakeSource struct {
	messages []database.Message
}

func (f *fakeSource) SearchMessages(_ context.Context, keyword string, _ bool, limit int, _ []string) ([]database.Message, error) {
	var out []database.Message
	for _, msg := range f.messages {
		if strings.Contains(strings.ToLower(msg.Content), strings.ToLower(keyword)) {
			out = append(out, msg)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) GetRecentMessages(_ context.Context, limit int, _ []string) ([]database.Message, error) {
	out := f.messages
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeBackend struct {
	received []openai.ChatCompletionMessage
	reply    string
	err      error
}

func (f *fakeBackend) Complete(_ context.Context, messages []openai.ChatCompletionMessage) (llm.GenerationResult, error) {
	f.received = messages
	if f.err != nil {
		return llm.GenerationResult{}, f.err
	}
	return llm.GenerationResult{
		Text:  f.reply,
		Usage: llm.TokenUsage{PromptTokens: 120, CompletionTokens: 40},
	}, nil
}

func newService(source *fakeSource, backend llm.Service) *qa.Service {
	resolver := func(string) (*search.Engine, error) {
		return search.NewEngine(source, nil, nil, nil), nil
	}
	return qa.New(resolver, backend, nil)
}

func TestAskBuildsPromptFromContext(t *testing.T) {
	t.Parallel()

	source := &fakeSource{messages: []database.Message{
		{
			MessageID: "2",
			AuthorID:  "u2",
			Content:   "설치는 공식 문서를 따라하세요",
			CreatedAt: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
		},
		{
			MessageID: "1",
			AuthorID:  "u1",
			Content:   "설치 질문이 있어요",
			CreatedAt: time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC),
		},
	}}
	backend := &fakeBackend{reply: "공식 문서를 따라 설치하시면 됩니다."}
	service := newService(source, backend)

	answer := service.Ask(context.Background(), "g1", "설치", 10)

	assert.Equal(t, "공식 문서를 따라 설치하시면 됩니다.", answer.Text)
	assert.True(t, answer.HasRelevantContext)
	assert.Equal(t, 120, answer.Usage.PromptTokens)
	assert.Len(t, answer.Context, 2)

	require.Len(t, backend.received, 4)

	system := backend.received[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, "채팅 기록")

	// Context messages come oldest first, each dated in KST. The 20:00 UTC
	// message crosses midnight there.
	assert.Equal(t, "[2025-05-30] 설치 질문이 있어요", backend.received[1].Content)
	assert.Equal(t, "[2025-06-02] 설치는 공식 문서를 따라하세요", backend.received[2].Content)

	question := backend.received[len(backend.received)-1]
	assert.Equal(t, openai.ChatMessageRoleUser, question.Role)
	assert.Contains(t, question.Content, "질문: 설치")
	assert.NotContains(t, question.Content, "찾지 못했습니다")
}

func TestAskFallbackMarksNoRelevantContext(t *testing.T) {
	t.Parallel()

	source := &fakeSource{messages: []database.Message{
		{
			MessageID: "1",
			AuthorID:  "u1",
			Content:   "잡담입니다",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	backend := &fakeBackend{reply: "관련 정보를 찾을 수 없습니다."}
	service := newService(source, backend)

	answer := service.Ask(context.Background(), "g1", "전혀 다른 주제의 질문입니다만 어떤가요", 10)

	assert.False(t, answer.HasRelevantContext)
	require.NotEmpty(t, backend.received)

	question := backend.received[len(backend.received)-1]
	assert.Contains(t, question.Content, "직접 관련된 메시지를 찾지 못했습니다")
}

func TestAskBackendFailureYieldsApology(t *testing.T) {
	t.Parallel()

	source := &fakeSource{messages: []database.Message{
		{
			MessageID: "1",
			AuthorID:  "u1",
			Content:   "설치 안내",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	backend := &fakeBackend{err: errors.New("connection refused")}
	service := newService(source, backend)

	answer := service.Ask(context.Background(), "g1", "설치", 10)

	assert.Contains(t, answer.Text, "죄송합니다")
	assert.Contains(t, answer.Text, "connection refused")
	assert.False(t, answer.HasRelevantContext)
	assert.Len(t, answer.Context, 1, "failed generation still reports the gathered context")
}

func TestAskResolverFailureYieldsApology(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{reply: "unused"}
	resolver := func(string) (*search.Engine, error) {
		return nil, errors.New("no database for guild")
	}
	service := qa.New(resolver, backend, nil)

	answer := service.Ask(context.Background(), "g1", "설치", 10)

	assert.Contains(t, answer.Text, "죄송합니다")
	assert.Empty(t, backend.received, "backend must not be called without an engine")
}
