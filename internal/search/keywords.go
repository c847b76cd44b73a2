package search

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultStopwords lists query tokens that carry no search value, mostly
// Korean particles, pronouns and interrogative endings.
var DefaultStopwords = []string{
	"이", "그", "저", "것", "수", "를", "에", "의", "가", "이다", "은", "는", "이런", "저런",
	"어떤", "무슨", "어떻게", "어디", "언제", "뭐", "왜", "누가", "누구", "어느", "했", "했나요",
	"했어요", "인가요", "인지", "인데", "있나요", "있어요", "일까요", "할까요", "합니까", "입니까",
	"계신가요", "있을까요", "알려주세요", "알려줘", "알려줘요", "해주세요", "해줘", "해줘요",
}

const maxKeywords = 20

var (
	tokenPattern     = regexp.MustCompile(`[a-zA-Z0-9가-힣]+`)
	allCapsPattern   = regexp.MustCompile(`^[A-Z0-9]+$`)
	mixedCasePattern = regexp.MustCompile(`[A-Z][a-z0-9]*`)
	digitPattern     = regexp.MustCompile(`[0-9]`)
	caseOrDigit      = regexp.MustCompile(`[A-Z0-9]`)
)

// NewStopwordSet builds a lookup set from a stopword list. An empty list
// falls back to DefaultStopwords.
func NewStopwordSet(words []string) map[string]struct{} {
	if len(words) == 0 {
		words = DefaultStopwords
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ExtractKeywords pulls search keywords out of a free-form query. Lowercased
// tokens survive when they are longer than one character and not stopwords.
// Tokens carrying an uppercase letter or a digit are kept verbatim since they
// tend to be identifiers or model names. Adjacent 2- and 3-token compounds
// are added to catch terms the tokenizer split apart. The result is deduped
// case-insensitively, sorted by descending length and capped at 20 entries.
func ExtractKeywords(query string, stopwords map[string]struct{}) []string {
	if stopwords == nil {
		stopwords = NewStopwordSet(nil)
	}

	tokens := tokenPattern.FindAllString(query, -1)

	var keywords []string
	seen := make(map[string]struct{})
	add := func(word string) {
		lower := strings.ToLower(word)
		if _, dup := seen[lower]; dup {
			return
		}
		seen[lower] = struct{}{}
		keywords = append(keywords, word)
	}

	for _, token := range tokens {
		lower := strings.ToLower(token)
		if _, stop := stopwords[lower]; stop {
			continue
		}
		if len([]rune(lower)) <= 1 {
			continue
		}
		add(lower)
	}

	for _, token := range tokens {
		if allCapsPattern.MatchString(token) || mixedCasePattern.MatchString(token) || digitPattern.MatchString(token) {
			add(token)
		}
	}

	for i := 0; i < len(tokens)-1; i++ {
		compound := tokens[i] + tokens[i+1]
		if len([]rune(compound)) > 3 {
			add(compound)
		}
		if i < len(tokens)-2 {
			compound = tokens[i] + tokens[i+1] + tokens[i+2]
			if len([]rune(compound)) > 3 {
				add(compound)
			}
		}
	}

	sort.SliceStable(keywords, func(a, b int) bool {
		return len([]rune(keywords[a])) > len([]rune(keywords[b]))
	})

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// isCaseSensitiveKeyword reports whether a keyword should be matched
// verbatim rather than case-folded.
func isCaseSensitiveKeyword(keyword string) bool {
	return caseOrDigit.MatchString(keyword)
}
