// Package analyzer derives structural and topical metadata from raw message
// text. Analyze is a pure function: identical input always yields identical
// output, and any string (including empty) is a valid input.
package analyzer

import (
	"regexp"
	"strings"
)

// MessageType classifies the overall shape of a message.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeCode        MessageType = "code"
	TypeQuestion    MessageType = "question"
	TypeExplanation MessageType = "explanation"
	TypeUnknown     MessageType = "unknown"
)

// Markdown feature tags recorded in Analysis.MarkdownUsed.
const (
	MarkdownCodeBlock    = "code_block"
	MarkdownInlineCode   = "inline_code"
	MarkdownBold         = "bold"
	MarkdownItalic       = "italic"
	MarkdownHeading      = "heading"
	MarkdownBulletList   = "bullet_list"
	MarkdownNumberedList = "numbered_list"
	MarkdownBlockquote   = "blockquote"
	MarkdownLink         = "link"
)

// Content structure tags recorded in Analysis.ContentStructure.
const (
	StructureHeaders      = "headers"
	StructureParagraphs   = "paragraphs"
	StructureLists        = "lists"
	StructureSectioned    = "sectioned"
	StructureMultiSection = "multi_section"
)

// maxTitleLen bounds how long a section's first line may be and still be
// treated as its title (question-style lines are exempt).
const maxTitleLen = 50

// Section is one blank-line-delimited chunk of a message with its derived
// title and colon-prefixed subtopics.
type Section struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Subtopics []string `json:"subtopics"`
}

// Analysis is the derived metadata for one message.
type Analysis struct {
	Topics           []string
	Sections         []Section
	MarkdownUsed     []string
	MessageType      MessageType
	ContentStructure []string
}

var markdownPatterns = []struct {
	tag string
	re  *regexp.Regexp
}{
	{MarkdownCodeBlock, regexp.MustCompile("(?s)```(?:\\w+)?\\n(.+?)\\n```")},
	{MarkdownInlineCode, regexp.MustCompile("`([^`]+)`")},
	{MarkdownBold, regexp.MustCompile(`\*\*(.+?)\*\*`)},
	{MarkdownItalic, regexp.MustCompile(`\*(.+?)\*`)},
	{MarkdownHeading, regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)},
	{MarkdownBulletList, regexp.MustCompile(`(?m)^\s*[\*\-\+]\s+(.+?)$`)},
	{MarkdownNumberedList, regexp.MustCompile(`(?m)^\s*\d+\.\s+(.+?)$`)},
	{MarkdownBlockquote, regexp.MustCompile(`(?m)^\s*>\s+(.+?)$`)},
	{MarkdownLink, regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)},
}

// QuestionMarkers identify interrogative text. The Korean markers match the
// communities this bot was built for; the list is data, not logic, and may be
// swapped out.
var QuestionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\?$`),
	regexp.MustCompile(`어떻게`),
	regexp.MustCompile(`무엇`),
	regexp.MustCompile(`언제`),
	regexp.MustCompile(`어디`),
	regexp.MustCompile(`누구`),
	regexp.MustCompile(`왜`),
	regexp.MustCompile(`질문`),
	regexp.MustCompile(`알려줘`),
	regexp.MustCompile(`알고 싶어`),
}

// ExplanationMarkers identify declarative/explanatory text.
var ExplanationMarkers = []*regexp.Regexp{
	regexp.MustCompile(`설명`),
	regexp.MustCompile(`방법`),
	regexp.MustCompile(`다음과 같이`),
	regexp.MustCompile(`다음과 같은`),
	regexp.MustCompile(`입니다`),
	regexp.MustCompile(`됩니다`),
}

var (
	codeFenceRe    = regexp.MustCompile("```")
	headingSplitRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)$`)
	blankLineRe    = regexp.MustCompile(`\n\s*\n`)
	listRe         = regexp.MustCompile(`(?m)^\s*(?:[\*\-\+]|\d+\.)\s+(.+?)$`)
	subtopicRe     = regexp.MustCompile(`(?m)^([^:\n]+):[ \t]*(.+)$`)

	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^([^\n:]+)\s*\n`),
		regexp.MustCompile(`^([^\n]+\?)\s*\n`),
		regexp.MustCompile(`^([^:\n]+):(.+)$`),
	}

	sectionDividerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d+\.\s+(.+?)\n`),
		regexp.MustCompile(`(?m)^-+\s*$`),
		regexp.MustCompile(`(?m)^=+\s*$`),
	}
)

// Analyze classifies text into markdown features, a message type, content
// structure tags, and blank-line-delimited sections with topics. Empty input
// yields the unknown analysis without error.
func Analyze(text string) Analysis {
	if text == "" {
		return Analysis{MessageType: TypeUnknown}
	}

	a := Analysis{MessageType: TypeText}

	for _, p := range markdownPatterns {
		if p.re.MatchString(text) {
			a.MarkdownUsed = append(a.MarkdownUsed, p.tag)
		}
	}

	a.MessageType = classify(text, a.MarkdownUsed)
	a.ContentStructure = detectStructure(text)
	a.Sections, a.Topics = extractSections(text)

	a.MarkdownUsed = dedupe(a.MarkdownUsed)
	a.ContentStructure = dedupe(a.ContentStructure)
	a.Topics = dedupe(a.Topics)

	return a
}

// classify picks the message type, first match wins: code, question,
// explanation, then plain text.
func classify(text string, markdownUsed []string) MessageType {
	if contains(markdownUsed, MarkdownCodeBlock) && len(codeFenceRe.FindAllString(text, -1)) >= 2 {
		return TypeCode
	}
	for _, re := range QuestionMarkers {
		if re.MatchString(text) {
			return TypeQuestion
		}
	}
	for _, re := range ExplanationMarkers {
		if re.MatchString(text) {
			return TypeExplanation
		}
	}
	return TypeText
}

func detectStructure(text string) []string {
	var structure []string

	if headings := headingSplitRe.FindAllString(text, -1); len(headings) > 0 {
		if len(headingSplitRe.Split(text, -1))+len(headings) > 2 {
			structure = append(structure, StructureHeaders)
		}
	}

	if countNonEmpty(strings.Split(text, "\n\n")) > 1 {
		structure = append(structure, StructureParagraphs)
	}

	if listRe.MatchString(text) {
		structure = append(structure, StructureLists)
	}

	if len(blankLineRe.Split(text, -1)) > 1 {
		structure = append(structure, StructureMultiSection)
	}

	for _, re := range sectionDividerPatterns {
		if re.MatchString(text) {
			structure = append(structure, StructureSectioned)
			break
		}
	}

	return structure
}

// extractSections splits text on blank-line boundaries and derives a title
// and colon-prefixed subtopics for each chunk. Titles and subtopics feed the
// topic list.
func extractSections(text string) ([]Section, []string) {
	var sections []Section
	var topics []string

	for _, raw := range blankLineRe.Split(text, -1) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		section := Section{Content: raw}

		lines := strings.Split(raw, "\n")
		potentialTitle := strings.TrimSpace(lines[0])
		for _, re := range titlePatterns {
			if m := re.FindStringSubmatch(raw); m != nil {
				potentialTitle = strings.TrimSpace(m[1])
				break
			}
		}

		if strings.HasSuffix(potentialTitle, "?") || len([]rune(potentialTitle)) < maxTitleLen {
			section.Title = potentialTitle
			topics = append(topics, potentialTitle)
		}

		for _, m := range subtopicRe.FindAllStringSubmatch(raw, -1) {
			topic := strings.TrimSpace(m[1])
			if topic != "" && topic != section.Title && len([]rune(topic)) < maxTitleLen {
				section.Subtopics = append(section.Subtopics, topic)
				topics = append(topics, topic)
			}
		}

		sections = append(sections, section)
	}

	return sections, topics
}

// dedupe removes duplicates while keeping first-occurrence order so that
// repeated analysis of the same input is byte-identical.
func dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func countNonEmpty(parts []string) int {
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
