package conversation

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/pkg/logging"
)

const fallbackVectorDim = 256

// SimilarityIndex is the nearest-neighbor search over past exchanges the
// assembler queries. Entries are immutable and strictly thread-scoped.
type SimilarityIndex interface {
	Index(ctx context.Context, threadID, turnID, userText, botText string) error
	Query(ctx context.Context, threadID, text string, limit int) ([]SimilarMatch, error)
	Purge(ctx context.Context, threadID string) error
}

type similarityEntry struct {
	turnID    string
	userText  string
	botText   string
	timestamp time.Time
	embedding []float32
	degraded  bool
}

// MemoryVectorIndex keeps embeddings in memory with cosine retrieval,
// partitioned by thread. When the embedder fails it substitutes a
// deterministic pseudo-random vector seeded from the text so indexing never
// blocks the turn; retrieval quality for those entries is effectively random,
// which is logged loudly rather than hidden.
type MemoryVectorIndex struct {
	embedder llm.Embedder
	logger   *logging.Logger

	mu      sync.RWMutex
	entries map[string][]similarityEntry // keyed by threadID
}

// NewMemoryVectorIndex creates an in-memory similarity index.
func NewMemoryVectorIndex(embedder llm.Embedder, logger *logging.Logger) *MemoryVectorIndex {
	if embedder == nil {
		panic("conversation: embedder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryVectorIndex{
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string][]similarityEntry),
	}
}

// Index embeds one completed exchange and stores it under its thread.
func (s *MemoryVectorIndex) Index(ctx context.Context, threadID, turnID, userText, botText string) error {
	text := userText + "\n" + botText
	vec, degraded := s.embed(ctx, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[threadID] = append(s.entries[threadID], similarityEntry{
		turnID:    turnID,
		userText:  userText,
		botText:   botText,
		timestamp: time.Now().UTC(),
		embedding: vec,
		degraded:  degraded,
	})
	return nil
}

// Query returns up to limit matches from the same thread, most similar first.
func (s *MemoryVectorIndex) Query(ctx context.Context, threadID, text string, limit int) ([]SimilarMatch, error) {
	if limit <= 0 {
		limit = 3
	}

	queryVec, degraded := s.embed(ctx, text)
	if degraded {
		// A degraded query vector would rank entries arbitrarily; better to
		// contribute nothing than to inject random history into the prompt.
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := s.entries[threadID]
	if len(candidates) == 0 {
		return nil, nil
	}

	matches := make([]SimilarMatch, 0, len(candidates))
	for _, entry := range candidates {
		score := cosineSimilarity(queryVec, entry.embedding)
		matches = append(matches, SimilarMatch{
			UserText: entry.userText,
			BotText:  entry.botText,
			Distance: 1 - score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Purge removes every entry for a thread.
func (s *MemoryVectorIndex) Purge(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, threadID)
	return nil
}

func (s *MemoryVectorIndex) embed(ctx context.Context, text string) (vec []float32, degraded bool) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err == nil && len(vectors) == 1 && len(vectors[0]) > 0 {
		return vectors[0], false
	}
	if err != nil {
		s.logger.Warn("embedding failed, substituting fallback vector; retrieval quality degraded",
			"error", err)
	} else {
		s.logger.Warn("embedder returned no vector, substituting fallback vector; retrieval quality degraded")
	}
	return fallbackVector(text), true
}

// fallbackVector produces a deterministic pseudo-random unit-length vector
// seeded from the text, so the same text always maps to the same point.
func fallbackVector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, fallbackVectorDim)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
