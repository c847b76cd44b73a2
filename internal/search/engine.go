package search

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"peanut/internal/database"
)

// Scoring weights and thresholds for the exact-keyword tier. The values are
// empirically tuned; they are variables so deployments can adjust them.
var (
	ScoreBase           = 1.0
	ScoreFirstLine      = 0.5
	ScoreHeadingLine    = 1.0
	ScoreWordBoundary   = 1.0
	ScorePrimaryKeyword = 0.5

	// RelevanceThreshold marks a hit as strongly relevant. When the best hit
	// of the exact-keyword tier reaches it, hits below InclusionThreshold are
	// pruned from that tier's result.
	RelevanceThreshold = 3.0
	InclusionThreshold = 2.0
)

const (
	shortQueryWords = 3
	timeWindowCap   = 50
)

// MessageSource is the store subset the engine reads from.
type MessageSource interface {
	SearchMessages(ctx context.Context, keyword string, caseSensitive bool, limit int, excludeAuthors []string) ([]database.Message, error)
	GetRecentMessages(ctx context.Context, limit int, excludeAuthors []string) ([]database.Message, error)
}

// Result is the outcome of one relevance search.
type Result struct {
	Messages []database.Message

	// FromFallback is true when no search tier matched and the messages are
	// just the most recent ones.
	FromFallback bool

	// TopScore is the best exact-keyword score, zero for other tiers.
	TopScore float64

	// Keywords are the extracted search keywords, for logging and display.
	Keywords []string
}

// Engine finds messages relevant to a query using a chain of progressively
// looser keyword tiers. It reads one tenant's store and never fails: any
// storage error degrades to the next tier and ultimately to recent messages.
type Engine struct {
	source         MessageSource
	stopwords      map[string]struct{}
	excludeAuthors []string
	logger         *slog.Logger
}

// NewEngine creates an Engine over one tenant's message source. Messages by
// excludeAuthors (typically the bot itself) are never returned.
func NewEngine(source MessageSource, stopwords []string, excludeAuthors []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		source:         source,
		stopwords:      NewStopwordSet(stopwords),
		excludeAuthors: excludeAuthors,
		logger:         logger.With("component", "search"),
	}
}

// FindRelevant returns up to limit messages relevant to query. It tries, in
// order: direct search for short queries, exact keyword match with scoring,
// an OR over all keywords, truncated keywords, keyword prefixes, and finally
// the most recent messages. The returned order is deterministic for a fixed
// store and query.
func (e *Engine) FindRelevant(ctx context.Context, query string, limit int) Result {
	if limit <= 0 {
		limit = 30
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return e.fallback(ctx, limit, nil)
	}

	words := strings.Fields(query)
	if len(words) <= shortQueryWords {
		if messages := e.directSearch(ctx, query, words, limit); len(messages) > 0 {
			e.logger.DebugContext(ctx, "Short-query direct search hit", "query", query, "count", len(messages))
			return Result{Messages: messages}
		}
	}

	keywords := ExtractKeywords(query, e.stopwords)
	if len(keywords) == 0 {
		e.logger.DebugContext(ctx, "No keywords extracted, falling back to recent messages", "query", query)
		return e.fallback(ctx, limit, nil)
	}
	intent := AnalyzeQueryIntent(query, e.stopwords)

	if messages, topScore := e.exactKeywordSearch(ctx, keywords, limit); len(messages) > 0 {
		e.logger.DebugContext(ctx, "Exact keyword search hit", "keywords", keywords, "count", len(messages))
		return Result{Messages: messages, TopScore: topScore, Keywords: keywords}
	}

	window := limit
	if intent.TimeRelated {
		window = min(limit*2, timeWindowCap)
	}
	if messages := e.anyKeywordSearch(ctx, keywords, window, limit); len(messages) > 0 {
		e.logger.DebugContext(ctx, "Keyword OR search hit", "count", len(messages))
		return Result{Messages: messages, Keywords: keywords}
	}

	if messages := e.truncatedKeywordSearch(ctx, keywords, limit); len(messages) > 0 {
		e.logger.DebugContext(ctx, "Truncated keyword search hit", "count", len(messages))
		return Result{Messages: messages, Keywords: keywords}
	}

	if messages := e.prefixSearch(ctx, keywords, limit); len(messages) > 0 {
		e.logger.DebugContext(ctx, "Keyword prefix search hit", "count", len(messages))
		return Result{Messages: messages, Keywords: keywords}
	}

	e.logger.DebugContext(ctx, "All search tiers empty, falling back to recent messages", "query", query)
	return e.fallback(ctx, limit, keywords)
}

func (e *Engine) fallback(ctx context.Context, limit int, keywords []string) Result {
	messages, err := e.source.GetRecentMessages(ctx, limit, e.excludeAuthors)
	if err != nil {
		e.logger.WarnContext(ctx, "Error fetching recent messages for fallback", "error", err)
		return Result{FromFallback: true, Keywords: keywords}
	}
	return Result{Messages: messages, FromFallback: true, Keywords: keywords}
}

// directSearch matches short queries against message text as a whole and
// word by word.
func (e *Engine) directSearch(ctx context.Context, query string, words []string, limit int) []database.Message {
	terms := []string{strings.ToLower(query)}
	for _, word := range words {
		if len([]rune(word)) >= 2 {
			terms = append(terms, word)
		}
	}
	return e.mergeSearches(ctx, terms, false, limit, limit)
}

// exactKeywordSearch runs the scored tier over the top 3 keywords.
func (e *Engine) exactKeywordSearch(ctx context.Context, keywords []string, limit int) ([]database.Message, float64) {
	primary := keywords
	if len(primary) > 3 {
		primary = primary[:3]
	}

	type scored struct {
		msg   database.Message
		score float64
	}
	byID := make(map[string]scored)
	var order []string

	for _, keyword := range primary {
		matches, err := e.source.SearchMessages(ctx, keyword, isCaseSensitiveKeyword(keyword), limit, e.excludeAuthors)
		if err != nil {
			e.logger.WarnContext(ctx, "Error searching keyword", "keyword", keyword, "error", err)
			continue
		}
		for _, msg := range matches {
			score := scoreMatch(msg.Content, keyword, keywords[0])
			prev, ok := byID[msg.MessageID]
			if !ok {
				byID[msg.MessageID] = scored{msg: msg, score: score}
				order = append(order, msg.MessageID)
			} else if score > prev.score {
				byID[msg.MessageID] = scored{msg: msg, score: score}
			}
		}
	}

	if len(byID) == 0 {
		return nil, 0
	}

	hits := make([]scored, 0, len(byID))
	for _, id := range order {
		hits = append(hits, byID[id])
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		if !hits[a].msg.CreatedAt.Equal(hits[b].msg.CreatedAt) {
			return hits[a].msg.CreatedAt.After(hits[b].msg.CreatedAt)
		}
		return hits[a].msg.MessageID < hits[b].msg.MessageID
	})

	topScore := hits[0].score
	messages := make([]database.Message, 0, len(hits))
	for _, hit := range hits {
		if topScore >= RelevanceThreshold && hit.score < InclusionThreshold {
			continue
		}
		messages = append(messages, hit.msg)
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, topScore
}

func (e *Engine) anyKeywordSearch(ctx context.Context, keywords []string, window, limit int) []database.Message {
	var terms []string
	for _, keyword := range keywords {
		if len([]rune(keyword)) > 1 {
			terms = append(terms, keyword)
		}
	}
	return e.mergeSearches(ctx, terms, false, window, limit)
}

func (e *Engine) truncatedKeywordSearch(ctx context.Context, keywords []string, limit int) []database.Message {
	head := keywords
	if len(head) > 5 {
		head = head[:5]
	}
	var terms []string
	for _, keyword := range head {
		runes := []rune(keyword)
		if len(runes) >= 4 {
			terms = append(terms, string(runes[:len(runes)-1]))
		}
	}
	return e.mergeSearches(ctx, terms, false, limit, limit)
}

func (e *Engine) prefixSearch(ctx context.Context, keywords []string, limit int) []database.Message {
	head := keywords
	if len(head) > 2 {
		head = head[:2]
	}
	var terms []string
	for _, keyword := range head {
		runes := []rune(keyword)
		if len(runes) > 2 {
			terms = append(terms, string(runes[:3]))
		}
	}
	return e.mergeSearches(ctx, terms, false, limit, limit)
}

// mergeSearches runs one substring search per term, merges the hits by
// message id and returns them newest first, capped at limit.
func (e *Engine) mergeSearches(ctx context.Context, terms []string, caseSensitive bool, window, limit int) []database.Message {
	seen := make(map[string]struct{})
	var merged []database.Message

	for _, term := range terms {
		matches, err := e.source.SearchMessages(ctx, term, caseSensitive, window, e.excludeAuthors)
		if err != nil {
			e.logger.WarnContext(ctx, "Error searching term", "term", term, "error", err)
			continue
		}
		for _, msg := range matches {
			if _, dup := seen[msg.MessageID]; dup {
				continue
			}
			seen[msg.MessageID] = struct{}{}
			merged = append(merged, msg)
		}
	}

	sort.SliceStable(merged, func(a, b int) bool {
		if !merged[a].CreatedAt.Equal(merged[b].CreatedAt) {
			return merged[a].CreatedAt.After(merged[b].CreatedAt)
		}
		return merged[a].MessageID < merged[b].MessageID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// scoreMatch weighs how well one message matches a keyword. Hits in the
// first line, heading-like first lines, full-word matches and the primary
// keyword all raise the score.
func scoreMatch(content, keyword, primaryKeyword string) float64 {
	score := ScoreBase

	contentLower := strings.ToLower(content)
	keywordLower := strings.ToLower(keyword)

	firstLine := contentLower
	if idx := strings.IndexByte(contentLower, '\n'); idx >= 0 {
		firstLine = contentLower[:idx]
	}
	if strings.Contains(firstLine, keywordLower) {
		score += ScoreFirstLine
	}
	if strings.HasPrefix(firstLine, "# ") || strings.HasPrefix(firstLine, "## ") || strings.Contains(firstLine, ":") {
		score += ScoreHeadingLine
	}
	if containsWholeWord(contentLower, keywordLower) {
		score += ScoreWordBoundary
	}
	if keywordLower == strings.ToLower(primaryKeyword) {
		score += ScorePrimaryKeyword
	}
	return score
}

// containsWholeWord reports whether word occurs in text bounded by
// non-alphanumeric runes. Boundaries are checked over runes so Hangul words
// count as word characters.
func containsWholeWord(text, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start

		before := rune(0)
		if idx > 0 {
			runes := []rune(text[:idx])
			before = runes[len(runes)-1]
		}
		after := rune(0)
		if rest := text[idx+len(word):]; rest != "" {
			after = []rune(rest)[0]
		}

		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		start = idx + len(word)
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
