package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seonho-lim/aide/internal/facts"
	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/pkg/logging"
)

var assemblerTracer = otel.Tracer("aide/assembler")

const policyFooter = `답변 규칙:
- 위에 제공된 정보와 대화 맥락 안에서만 답하세요.
- 제공된 정보에 없는 내용은 지어내지 말고, 모르면 모른다고 말하세요.
- 새 질문과 무관한 이전 대화 내용은 답변에 끌어오지 마세요.`

const searchQueryPrompt = `Produce one short web search query (under 10 words, same language as the question) that would find the information needed to answer the question below. Reply with the query text only.

Conversation context:
%s

Question: %s`

const searchSummaryPrompt = `Summarize the search results below in at most 150 words, keeping only facts relevant to the question. Reply with the summary text only.

Question: %s

Search results:
%s`

var weatherKeywords = []string{
	"날씨", "기온", "온도", "우산", "미세먼지", "weather", "temperature", "forecast",
}

var dateKeywords = []string{
	"오늘 날짜", "오늘이 며칠", "며칠이야", "몇일이야", "무슨 요일", "몇 년도", "지금 몇 시", "몇시야",
	"what day", "what date", "what time is it", "today's date",
}

// AssembleInput carries everything the assembler needs for one turn. Summary
// and Similar are whatever the controller loaded; both are suppressed when
// Reset is set.
type AssembleInput struct {
	ThreadID string
	Question string
	Reset    bool
	Summary  string
	Similar  []SimilarMatch
}

// ContextAssembler merges the rolling summary, similar past exchanges, and
// auxiliary facts into one bounded prompt payload, tracking which sources
// contributed.
type ContextAssembler struct {
	client   llm.Client
	weather  facts.WeatherProvider
	searcher facts.SearchProvider
	clock    facts.Clock
	counter  *tokenCounter
	logger   *logging.Logger

	weatherLocation string
	searchCount     int
	maxTokens       int
}

// AssemblerOption configures the assembler.
type AssemblerOption func(*ContextAssembler)

// WithWeather wires a weather provider and its default lookup location.
func WithWeather(provider facts.WeatherProvider, location string) AssemblerOption {
	return func(a *ContextAssembler) {
		a.weather = provider
		if location != "" {
			a.weatherLocation = location
		}
	}
}

// WithSearch wires a web search provider.
func WithSearch(provider facts.SearchProvider, resultCount int) AssemblerOption {
	return func(a *ContextAssembler) {
		a.searcher = provider
		if resultCount > 0 {
			a.searchCount = resultCount
		}
	}
}

// WithClock overrides the date/time source (tests pin this).
func WithClock(clock facts.Clock) AssemblerOption {
	return func(a *ContextAssembler) {
		a.clock = clock
	}
}

// WithMaxContextTokens bounds the total size of contributed context blocks.
func WithMaxContextTokens(max int) AssemblerOption {
	return func(a *ContextAssembler) {
		if max > 0 {
			a.maxTokens = max
		}
	}
}

// NewContextAssembler creates an assembler. Weather and search providers are
// optional; absent providers simply never contribute.
func NewContextAssembler(client llm.Client, logger *logging.Logger, opts ...AssemblerOption) *ContextAssembler {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &ContextAssembler{
		client:          client,
		clock:           facts.NewKSTClock(nil),
		counter:         newTokenCounter(logger),
		logger:          logger,
		weatherLocation: "Seoul",
		searchCount:     5,
		maxTokens:       3000,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble produces the turn's context payload. Individual source failures
// degrade to an absent block; assembly itself never fails.
func (a *ContextAssembler) Assemble(ctx context.Context, in AssembleInput) *ContextPayload {
	ctx, span := assemblerTracer.Start(ctx, "assembler.assemble")
	defer span.End()

	payload := &ContextPayload{
		ThreadID:  in.ThreadID,
		Question:  in.Question,
		Reset:     in.Reset,
		Timestamp: time.Now().UTC(),
	}

	if !in.Reset {
		if text := strings.TrimSpace(in.Summary); text != "" {
			payload.Blocks = append(payload.Blocks, ContextBlock{
				Source: SourceSummary, Text: text, Present: true,
			})
		}
		if text := renderSimilarMatches(in.Similar); text != "" {
			payload.Blocks = append(payload.Blocks, ContextBlock{
				Source: SourceSimilar, Text: text, Present: true,
			})
		}
	}

	// Date/weather lookups and web search are mutually exclusive per turn: a
	// factual lookup should not be diluted with retrieval noise, and skipping
	// the search saves a network round trip.
	switch {
	case isDateTimeQuery(in.Question):
		payload.Blocks = append(payload.Blocks, ContextBlock{
			Source: SourceDateTime, Text: a.clock.NowFact(), Present: true,
		})
	case isWeatherQuery(in.Question):
		if block, ok := a.weatherBlock(ctx); ok {
			payload.Blocks = append(payload.Blocks, block)
		}
	default:
		if block, ok := a.searchBlock(ctx, in); ok {
			payload.Blocks = append(payload.Blocks, block)
		}
	}

	a.bound(payload)

	span.SetAttributes(
		attribute.Bool("assembler.reset", in.Reset),
		attribute.Bool("assembler.summary", payload.Present(SourceSummary)),
		attribute.Bool("assembler.similar", payload.Present(SourceSimilar)),
		attribute.Bool("assembler.weather", payload.Present(SourceWeather)),
		attribute.Bool("assembler.datetime", payload.Present(SourceDateTime)),
		attribute.Bool("assembler.search", payload.Present(SourceSearch)),
	)
	return payload
}

// BuildPrompt composes the instruction-augmented messages for generation.
func (a *ContextAssembler) BuildPrompt(payload *ContextPayload) llm.Request {
	var context strings.Builder
	for _, block := range payload.Blocks {
		if !block.Present {
			continue
		}
		switch block.Source {
		case SourceSummary:
			fmt.Fprintf(&context, "지금까지의 대화 요약:\n%s\n\n", block.Text)
		case SourceSimilar:
			fmt.Fprintf(&context, "관련된 이전 대화:\n%s\n\n", block.Text)
		case SourceDateTime, SourceWeather:
			fmt.Fprintf(&context, "참고 정보:\n%s\n\n", block.Text)
		case SourceSearch:
			fmt.Fprintf(&context, "웹 검색 요약:\n%s\n\n", block.Text)
		}
	}

	var user strings.Builder
	if context.Len() > 0 {
		user.WriteString(context.String())
	}
	fmt.Fprintf(&user, "질문: %s", payload.Question)

	return llm.Request{
		System:   []string{policyFooter},
		Messages: []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: user.String()}},
	}
}

func (a *ContextAssembler) weatherBlock(ctx context.Context) (ContextBlock, bool) {
	if a.weather == nil {
		return ContextBlock{}, false
	}
	report, err := a.weather.Lookup(ctx, a.weatherLocation)
	if err != nil {
		a.logger.Warn("weather lookup failed, omitting weather context", "error", err)
		return ContextBlock{}, false
	}
	text := report.Summary() + "\n" + a.clock.NowFact()
	return ContextBlock{Source: SourceWeather, Text: text, Present: true}, true
}

// searchBlock runs the search sub-flow: model-generated query, the search
// itself, then a query-scoped summary of the results. Empty results contribute
// nothing; that is not an error.
func (a *ContextAssembler) searchBlock(ctx context.Context, in AssembleInput) (ContextBlock, bool) {
	if a.searcher == nil {
		return ContextBlock{}, false
	}

	query := a.generateSearchQuery(ctx, in)
	if query == "" {
		return ContextBlock{}, false
	}

	results, err := a.searcher.Search(ctx, query, a.searchCount)
	if err != nil {
		a.logger.Warn("web search failed, omitting search context", "query", query, "error", err)
		return ContextBlock{}, false
	}
	if len(results) == 0 {
		return ContextBlock{}, false
	}

	summary := a.summarizeResults(ctx, in.Question, results)
	if summary == "" {
		return ContextBlock{}, false
	}
	return ContextBlock{Source: SourceSearch, Text: summary, Present: true}, true
}

func (a *ContextAssembler) generateSearchQuery(ctx context.Context, in AssembleInput) string {
	contextText := strings.TrimSpace(in.Summary)
	if in.Reset || contextText == "" {
		contextText = "(없음)"
	}
	resp, err := a.client.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{{
			Role:    llm.ChatRoleUser,
			Content: fmt.Sprintf(searchQueryPrompt, contextText, in.Question),
		}},
		MaxTokens:   60,
		Temperature: 0,
	})
	if err != nil {
		a.logger.Warn("search query generation failed, skipping search", "error", err)
		return ""
	}
	return strings.Trim(strings.TrimSpace(resp.Text), `"`)
}

func (a *ContextAssembler) summarizeResults(ctx context.Context, question string, results []facts.SearchResult) string {
	var rendered strings.Builder
	for i, r := range results {
		fmt.Fprintf(&rendered, "%d. %s — %s\n", i+1, r.Title, r.Snippet)
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Messages: []llm.ChatMessage{{
			Role:    llm.ChatRoleUser,
			Content: fmt.Sprintf(searchSummaryPrompt, question, rendered.String()),
		}},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		a.logger.Warn("search summarization failed, omitting search context", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// bound trims context blocks so their combined size stays inside the token
// budget. Later blocks (facts, search) are trimmed before earlier ones
// (summary, similar) are touched.
func (a *ContextAssembler) bound(payload *ContextPayload) {
	budget := a.maxTokens
	for i, block := range payload.Blocks {
		if !block.Present {
			continue
		}
		cost := a.counter.Count(block.Text)
		if cost <= budget {
			budget -= cost
			continue
		}
		if budget <= 0 {
			payload.Blocks[i].Present = false
			payload.Blocks[i].Text = ""
			continue
		}
		payload.Blocks[i].Text = a.counter.Truncate(block.Text, budget)
		a.logger.Debug("context block truncated to fit token budget",
			"source", block.Source, "budget", budget)
		budget = 0
	}
}

func renderSimilarMatches(matches []SimilarMatch) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "%d) 사용자: %s\n   봇: %s\n", i+1, m.UserText, m.BotText)
	}
	return strings.TrimSpace(b.String())
}

func isWeatherQuery(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range weatherKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isDateTimeQuery(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range dateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
