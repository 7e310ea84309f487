package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/seonho-lim/aide/internal/facts"
	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/pkg/logging"
)

func pinnedClock() facts.Clock {
	return facts.NewKSTClock(func() time.Time {
		return time.Date(2025, 3, 2, 5, 30, 0, 0, time.UTC) // 14:30 KST
	})
}

// searchFlowClient answers the query-generation and result-summary prompts
// the search sub-flow issues.
func searchFlowClient() *fakeClient {
	return &fakeClient{fn: func(req llm.Request) (llm.Response, error) {
		content := req.Messages[0].Content
		if strings.Contains(content, "web search query") {
			return llm.Response{Text: `"부활절 날짜 2025"`}, nil
		}
		if strings.Contains(content, "Summarize the search results") {
			return llm.Response{Text: "2025년 부활절은 4월 20일이다."}, nil
		}
		return llm.Response{Text: "unexpected prompt"}, nil
	}}
}

func TestAssembleDateTimeQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	assembler := NewContextAssembler(textClient("x"), logging.Default(),
		WithClock(pinnedClock()),
		WithSearch(searcher, 5),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "오늘 무슨 요일이야?",
	})

	block := payload.Block(SourceDateTime)
	if !block.Present {
		t.Fatal("datetime block absent for a date question")
	}
	if !strings.Contains(block.Text, "2025년 3월 2일 일요일") {
		t.Fatalf("datetime text = %q", block.Text)
	}
	if searcher.calls != 0 {
		t.Fatal("date question must not trigger a web search")
	}
}

func TestAssembleWeatherQuery(t *testing.T) {
	weather := &fakeWeather{report: &facts.WeatherReport{
		Location:    "Seoul",
		Description: "맑음",
		Temperature: 5,
		FeelsLike:   2,
		Humidity:    40,
		WindSpeed:   3.1,
	}}
	searcher := &fakeSearcher{}
	assembler := NewContextAssembler(textClient("x"), logging.Default(),
		WithClock(pinnedClock()),
		WithWeather(weather, "Seoul"),
		WithSearch(searcher, 5),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "오늘 날씨 어때?",
	})

	block := payload.Block(SourceWeather)
	if !block.Present {
		t.Fatal("weather block absent for a weather question")
	}
	if !strings.Contains(block.Text, "맑음") || !strings.Contains(block.Text, "현재 날짜와 시간") {
		t.Fatalf("weather text = %q", block.Text)
	}
	if searcher.calls != 0 {
		t.Fatal("weather question must not trigger a web search")
	}
	if payload.Present(SourceSearch) {
		t.Fatal("weather and search blocks are mutually exclusive")
	}
}

func TestAssembleSearchFlow(t *testing.T) {
	searcher := &fakeSearcher{results: []facts.SearchResult{
		{Title: "부활절 2025", Snippet: "2025년 부활절은 4월 20일"},
	}}
	assembler := NewContextAssembler(searchFlowClient(), logging.Default(),
		WithClock(pinnedClock()),
		WithSearch(searcher, 5),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "올해 부활절이 언제야?",
	})

	block := payload.Block(SourceSearch)
	if !block.Present {
		t.Fatal("search block absent for a general question")
	}
	if block.Text != "2025년 부활절은 4월 20일이다." {
		t.Fatalf("search summary = %q", block.Text)
	}
	if searcher.lastQ != "부활절 날짜 2025" {
		t.Fatalf("search query = %q, want quotes stripped", searcher.lastQ)
	}
}

func TestAssembleEmptySearchResults(t *testing.T) {
	searcher := &fakeSearcher{results: nil}
	assembler := NewContextAssembler(searchFlowClient(), logging.Default(),
		WithSearch(searcher, 5),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "아주 특이한 질문",
	})

	if payload.Present(SourceSearch) {
		t.Fatal("empty search results should contribute nothing")
	}
}

func TestAssembleResetSuppressesMemory(t *testing.T) {
	assembler := NewContextAssembler(textClient("x"), logging.Default(),
		WithClock(pinnedClock()),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "오늘 날짜 알려줘",
		Reset:    true,
		Summary:  "과거 대화 요약",
		Similar:  []SimilarMatch{{UserText: "q", BotText: "a"}},
	})

	if payload.Present(SourceSummary) || payload.Present(SourceSimilar) {
		t.Fatal("reset turn must not carry summary or similar context")
	}
	if !payload.Present(SourceDateTime) {
		t.Fatal("auxiliary facts should survive a reset")
	}
}

func TestAssembleCarriesMemoryWithoutReset(t *testing.T) {
	assembler := NewContextAssembler(textClient("x"), logging.Default(),
		WithClock(pinnedClock()),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "오늘 날짜 알려줘",
		Summary:  "과거 대화 요약",
		Similar:  []SimilarMatch{{UserText: "질문", BotText: "답변"}},
	})

	if !payload.Present(SourceSummary) {
		t.Fatal("summary block missing")
	}
	similar := payload.Block(SourceSimilar)
	if !similar.Present || !strings.Contains(similar.Text, "질문") {
		t.Fatalf("similar block = %+v", similar)
	}
}

func TestAssembleBoundsContextTokens(t *testing.T) {
	long := strings.Repeat("내용이 아주 긴 요약 문장입니다. ", 200)
	assembler := NewContextAssembler(textClient("x"), logging.Default(),
		WithClock(pinnedClock()),
		WithMaxContextTokens(50),
	)

	payload := assembler.Assemble(context.Background(), AssembleInput{
		ThreadID: "t1",
		Question: "오늘 날짜 알려줘",
		Summary:  long,
	})

	summary := payload.Block(SourceSummary)
	if !summary.Present {
		t.Fatal("summary should be truncated, not dropped, when it is first in line")
	}
	if len(summary.Text) >= len(long) {
		t.Fatal("summary was not truncated")
	}
	if payload.Present(SourceDateTime) {
		t.Fatal("later block should be dropped once the budget is spent")
	}
}

func TestBuildPromptLayout(t *testing.T) {
	assembler := NewContextAssembler(textClient("x"), logging.Default())
	payload := &ContextPayload{
		Question: "서울 기온은?",
		Blocks: []ContextBlock{
			{Source: SourceSummary, Text: "요약 내용", Present: true},
			{Source: SourceWeather, Text: "기온 5도", Present: true},
		},
	}

	req := assembler.BuildPrompt(payload)
	if len(req.System) != 1 || !strings.Contains(req.System[0], "답변 규칙") {
		t.Fatalf("system prompt = %v", req.System)
	}
	content := req.Messages[0].Content
	for _, want := range []string{"지금까지의 대화 요약:", "요약 내용", "참고 정보:", "기온 5도", "질문: 서울 기온은?"} {
		if !strings.Contains(content, want) {
			t.Fatalf("prompt missing %q:\n%s", want, content)
		}
	}
}

func TestQueryClassification(t *testing.T) {
	tests := []struct {
		question string
		weather  bool
		date     bool
	}{
		{"오늘 날씨 어때?", true, false},
		{"내일 기온 몇 도야?", true, false},
		{"오늘 무슨 요일이야?", false, true},
		{"지금 몇 시야?", false, true},
		{"What's the weather like?", true, false},
		{"파이썬이 뭐야?", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := isWeatherQuery(tt.question); got != tt.weather {
				t.Fatalf("isWeatherQuery = %v, want %v", got, tt.weather)
			}
			if got := isDateTimeQuery(tt.question); got != tt.date {
				t.Fatalf("isDateTimeQuery = %v, want %v", got, tt.date)
			}
		})
	}
}
