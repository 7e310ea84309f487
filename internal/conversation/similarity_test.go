package conversation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/seonho-lim/aide/pkg/logging"
)

// axisEmbedder maps known texts to fixed unit vectors so cosine ordering in
// tests is exact.
func axisEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			vec, ok := vectors[text]
			if !ok {
				return nil, errors.New("unexpected text: " + text)
			}
			out[i] = vec
		}
		return out, nil
	}}
}

func TestSimilarityQueryOrdersByDistance(t *testing.T) {
	vectors := map[string][]float32{
		"close\nanswer":   {0.9, 0.1, 0},
		"middle\nanswer":  {0.5, 0.5, 0},
		"far\nanswer":     {0, 0, 1},
		"close question?": {1, 0, 0},
	}
	index := NewMemoryVectorIndex(axisEmbedder(vectors), logging.Default())
	ctx := context.Background()

	for _, pair := range [][2]string{
		{"far", "answer"},
		{"close", "answer"},
		{"middle", "answer"},
	} {
		if err := index.Index(ctx, "t1", "turn", pair[0], pair[1]); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	matches, err := index.Query(ctx, "t1", "close question?", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].UserText != "close" || matches[1].UserText != "middle" {
		t.Fatalf("wrong ordering: %+v", matches)
	}
	if matches[0].Distance >= matches[1].Distance {
		t.Fatalf("distances not ascending: %v >= %v", matches[0].Distance, matches[1].Distance)
	}
}

func TestSimilarityThreadIsolation(t *testing.T) {
	embedder := &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}}
	index := NewMemoryVectorIndex(embedder, logging.Default())
	ctx := context.Background()

	if err := index.Index(ctx, "t1", "turn", "q", "a"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	matches, err := index.Query(ctx, "t2", "q", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("thread t2 saw %d entries from t1", len(matches))
	}
}

func TestSimilarityPurge(t *testing.T) {
	embedder := &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}}
	index := NewMemoryVectorIndex(embedder, logging.Default())
	ctx := context.Background()

	if err := index.Index(ctx, "t1", "turn", "q", "a"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if err := index.Purge(ctx, "t1"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	matches, err := index.Query(ctx, "t1", "q", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("purged thread still has %d entries", len(matches))
	}
}

func TestSimilarityDegradedQueryContributesNothing(t *testing.T) {
	calls := 0
	embedder := &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		calls++
		if calls == 1 {
			return [][]float32{{1, 0}}, nil
		}
		return nil, errors.New("embedder down")
	}}
	index := NewMemoryVectorIndex(embedder, logging.Default())
	ctx := context.Background()

	if err := index.Index(ctx, "t1", "turn", "q", "a"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	matches, err := index.Query(ctx, "t1", "anything", 3)
	if err != nil {
		t.Fatalf("Query should degrade, not fail: %v", err)
	}
	if matches != nil {
		t.Fatalf("degraded query returned matches: %+v", matches)
	}
}

func TestFallbackVectorDeterministic(t *testing.T) {
	a := fallbackVector("some exchange text")
	b := fallbackVector("some exchange text")
	c := fallbackVector("different text")

	if len(a) != fallbackVectorDim {
		t.Fatalf("vector length = %d, want %d", len(a), fallbackVectorDim)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text produced different vectors at %d", i)
		}
	}
	if cosineSimilarity(a, c) > 0.99 {
		t.Fatal("different texts produced near-identical vectors")
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-3 {
		t.Fatalf("vector norm = %v, want unit length", math.Sqrt(norm))
	}
}
