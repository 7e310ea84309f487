package conversation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/seonho-lim/aide/internal/facts"
	"github.com/seonho-lim/aide/internal/llm"
)

// fakeClient answers Complete with a caller-supplied function so each test
// can script arbitrary model behavior, including per-prompt dispatch.
type fakeClient struct {
	fn    func(req llm.Request) (llm.Response, error)
	calls int
}

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.calls++
	return f.fn(req)
}

// textClient always answers with the same text.
func textClient(text string) *fakeClient {
	return &fakeClient{fn: func(llm.Request) (llm.Response, error) {
		return llm.Response{Text: text}, nil
	}}
}

type fakeEmbedder struct {
	fn func(texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f.fn(texts)
}

type fakeWeather struct {
	report *facts.WeatherReport
	err    error
	calls  int
}

func (f *fakeWeather) Lookup(ctx context.Context, location string) (*facts.WeatherReport, error) {
	f.calls++
	return f.report, f.err
}

type fakeSearcher struct {
	results []facts.SearchResult
	err     error
	calls   int
	lastQ   string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, count int) ([]facts.SearchResult, error) {
	f.calls++
	f.lastQ = query
	return f.results, f.err
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}
