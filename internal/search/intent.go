package search

import "strings"

// QueryIntent is a coarse classification of what a query is asking for.
type QueryIntent struct {
	IsQuestion    bool
	QuestionType  string // "how", "when", "who", "why", "where" or empty
	TimeRelated   bool
	PersonRelated bool
	Topic         string
}

var questionMarkers = []string{"어떻게", "무엇", "언제", "어디", "누구", "왜", "?", "까요", "인가요", "인지"}

// AnalyzeQueryIntent classifies a query by its interrogative markers. The
// topic is the highest-ranked extracted keyword. Time-related intent widens
// the search window downstream.
func AnalyzeQueryIntent(query string, stopwords map[string]struct{}) QueryIntent {
	var intent QueryIntent

	for _, marker := range questionMarkers {
		if strings.Contains(query, marker) {
			intent.IsQuestion = true
			break
		}
	}

	containsAny := func(markers ...string) bool {
		for _, m := range markers {
			if strings.Contains(query, m) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny("어떻게", "방법"):
		intent.QuestionType = "how"
	case containsAny("언제", "날짜", "시간", "기간"):
		intent.QuestionType = "when"
		intent.TimeRelated = true
	case containsAny("누구", "이름", "사람"):
		intent.QuestionType = "who"
		intent.PersonRelated = true
	case containsAny("왜", "이유"):
		intent.QuestionType = "why"
	case containsAny("어디", "장소", "위치"):
		intent.QuestionType = "where"
	}

	if keywords := ExtractKeywords(query, stopwords); len(keywords) > 0 {
		intent.Topic = keywords[0]
	}
	return intent
}
