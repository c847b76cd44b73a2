package analyzer_test

import (
	"reflect"
	"testing"

	"peanut/internal/analyzer"
)

func TestAnalyzeEmptyInput(t *testing.T) {
	t.Parallel()

	got := analyzer.Analyze("")

	if got.MessageType != analyzer.TypeUnknown {
		t.Errorf("Analyze(\"\") message type = %q, want %q", got.MessageType, analyzer.TypeUnknown)
	}
	if len(got.Topics) != 0 || len(got.Sections) != 0 || len(got.MarkdownUsed) != 0 || len(got.ContentStructure) != 0 {
		t.Errorf("Analyze(\"\") returned non-empty analysis: %+v", got)
	}
}

func TestAnalyzePurity(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"# 설치 방법\n이렇게 하세요",
		"```go\nfmt.Println(\"hi\")\n```",
		"서버 설정은 어떻게 하나요?",
		"첫 단락입니다\n\n둘째 단락: 내용\n- 항목 1\n- 항목 2",
	}

	for _, input := range inputs {
		first := analyzer.Analyze(input)
		second := analyzer.Analyze(input)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Analyze(%q) not deterministic:\nfirst:  %+v\nsecond: %+v", input, first, second)
		}
	}
}

func TestAnalyzeMessageType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  analyzer.MessageType
	}{
		{
			name:  "plain text",
			input: "오늘 날씨 좋네요",
			want:  analyzer.TypeText,
		},
		{
			name:  "question by trailing question mark",
			input: "서버 설정은 어디서 바꾸나요?",
			want:  analyzer.TypeQuestion,
		},
		{
			name:  "question by interrogative word",
			input: "언제 모임이 시작하는지 알려줘",
			want:  analyzer.TypeQuestion,
		},
		{
			name:  "explanation by marker",
			input: "설치는 다음과 같이 진행하면 됩니다",
			want:  analyzer.TypeExplanation,
		},
		{
			name:  "code block with two fences",
			input: "```go\nfmt.Println(\"hi\")\n```",
			want:  analyzer.TypeCode,
		},
		{
			name:  "single fence is not code",
			input: "코드는 ```",
			want:  analyzer.TypeText,
		},
		{
			name:  "question beats explanation",
			input: "이 방법은 무엇인가요?",
			want:  analyzer.TypeQuestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := analyzer.Analyze(tt.input)
			if got.MessageType != tt.want {
				t.Errorf("Analyze(%q) message type = %q, want %q", tt.input, got.MessageType, tt.want)
			}
		})
	}
}

func TestAnalyzeMarkdownFeatures(t *testing.T) {
	t.Parallel()

	input := "# 제목\n**중요** 내용과 `코드` 그리고 [링크](https://example.com)\n- 항목 1\n- 항목 2\n> 인용문"
	got := analyzer.Analyze(input)

	want := map[string]bool{
		analyzer.MarkdownHeading:    true,
		analyzer.MarkdownBold:       true,
		analyzer.MarkdownInlineCode: true,
		analyzer.MarkdownLink:       true,
		analyzer.MarkdownBulletList: true,
		analyzer.MarkdownBlockquote: true,
	}

	found := make(map[string]bool, len(got.MarkdownUsed))
	for _, tag := range got.MarkdownUsed {
		found[tag] = true
	}

	for tag := range want {
		if !found[tag] {
			t.Errorf("Analyze(%q) missing markdown tag %q, got %v", input, tag, got.MarkdownUsed)
		}
	}
	if found[analyzer.MarkdownCodeBlock] {
		t.Errorf("Analyze(%q) should not report code_block, got %v", input, got.MarkdownUsed)
	}
}

func TestAnalyzeContentStructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single paragraph",
			input: "한 줄짜리 메시지",
			want:  nil,
		},
		{
			name:  "headers paragraphs lists and sections",
			input: "# 제목\n본문 내용\n\n- 항목 1\n- 항목 2",
			want: []string{
				analyzer.StructureHeaders,
				analyzer.StructureParagraphs,
				analyzer.StructureLists,
				analyzer.StructureMultiSection,
			},
		},
		{
			name:  "numbered divider marks sectioned",
			input: "1. 첫 번째 단계\n설명입니다",
			want:  []string{analyzer.StructureLists, analyzer.StructureSectioned},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := analyzer.Analyze(tt.input)
			if !reflect.DeepEqual(got.ContentStructure, tt.want) {
				t.Errorf("Analyze(%q) structure = %v, want %v", tt.input, got.ContentStructure, tt.want)
			}
		})
	}
}

func TestAnalyzeSectionsAndTopics(t *testing.T) {
	t.Parallel()

	input := "설치 방법\n1단계를 하세요\n\n설정: 값을 바꾸세요"
	got := analyzer.Analyze(input)

	if len(got.Sections) != 2 {
		t.Fatalf("Analyze(%q) section count = %d, want 2", input, len(got.Sections))
	}
	if got.Sections[0].Title != "설치 방법" {
		t.Errorf("first section title = %q, want %q", got.Sections[0].Title, "설치 방법")
	}
	if got.Sections[1].Title != "설정" {
		t.Errorf("second section title = %q, want %q", got.Sections[1].Title, "설정")
	}

	wantTopics := []string{"설치 방법", "설정"}
	if !reflect.DeepEqual(got.Topics, wantTopics) {
		t.Errorf("topics = %v, want %v", got.Topics, wantTopics)
	}
}

func TestAnalyzeLongTitleNotATopic(t *testing.T) {
	t.Parallel()

	longLine := "이 줄은 제목이라고 하기에는 너무 길어서 주제로 추출되면 안 되는 문장입니다 왜냐하면 오십 글자 제한을 훌쩍 넘기 때문입니다"
	got := analyzer.Analyze(longLine + "\n본문")

	if len(got.Topics) != 0 {
		t.Errorf("long first line extracted as topic: %v", got.Topics)
	}
	if len(got.Sections) != 1 || got.Sections[0].Title != "" {
		t.Errorf("long first line kept as section title: %+v", got.Sections)
	}
}
