package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/pkg/logging"
)

const summaryInstruction = `You maintain a rolling summary of an ongoing conversation.
Compress the input below into at most 200 words. Keep only the information a future
turn would need to stay coherent: standing topics, facts the user shared, open
questions, and commitments made by the assistant. Drop pleasantries and phrasing.
Reply with the summary text only.`

// SummaryStore keeps the rolling compressed context per thread in Redis and
// regenerates it by folding the latest exchange through the model.
type SummaryStore struct {
	redis  *redis.Client
	client llm.Client
	logger *logging.Logger
	tracer trace.Tracer
	ttl    time.Duration
}

// NewSummaryStore creates a summary store with the same TTL policy as the
// history store.
func NewSummaryStore(redisClient *redis.Client, client llm.Client, ttl time.Duration, logger *logging.Logger) *SummaryStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SummaryStore{
		redis:  redisClient,
		client: client,
		logger: logger,
		tracer: otel.Tracer("aide.internal.conversation.summary"),
		ttl:    ttl,
	}
}

func summaryKey(threadID string) string {
	return fmt.Sprintf("summary:%s", threadID)
}

// Get returns the current summary, empty when absent or expired.
func (s *SummaryStore) Get(ctx context.Context, threadID string) (string, error) {
	val, err := s.redis.Get(ctx, summaryKey(threadID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("conversation: failed to load summary: %w", err)
	}
	return val, nil
}

// Set stores the summary and refreshes its TTL.
func (s *SummaryStore) Set(ctx context.Context, threadID, text string) error {
	if err := s.redis.Set(ctx, summaryKey(threadID), text, s.ttl).Err(); err != nil {
		return fmt.Errorf("conversation: failed to persist summary: %w", err)
	}
	return nil
}

// Clear resets the summary to the empty string. An empty value reads the same
// as an absent one downstream, but clearing is an explicit reset signal and is
// logged as such.
func (s *SummaryStore) Clear(ctx context.Context, threadID string) error {
	if err := s.Set(ctx, threadID, ""); err != nil {
		return err
	}
	s.logger.Info("summary reset", "thread_id", threadID)
	return nil
}

// Delete removes the summary key entirely (thread deletion cascade).
func (s *SummaryStore) Delete(ctx context.Context, threadID string) error {
	if err := s.redis.Del(ctx, summaryKey(threadID)).Err(); err != nil {
		return fmt.Errorf("conversation: failed to delete summary: %w", err)
	}
	return nil
}

// Regenerate folds the latest exchange into the existing summary and stores
// the replacement. This is lossy compaction, not a running log: the model
// output replaces the previous summary wholesale. A model failure or empty
// output leaves the previous summary untouched and is logged as degraded.
func (s *SummaryStore) Regenerate(ctx context.Context, threadID, userText, botText string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.regenerate_summary")
	defer span.End()
	span.SetAttributes(attribute.String("aide.thread_id", threadID))

	previous, err := s.Get(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var input strings.Builder
	if strings.TrimSpace(previous) != "" {
		fmt.Fprintf(&input, "이전 요약:\n%s\n\n새 대화:\n사용자: %s\n봇: %s", previous, userText, botText)
	} else {
		fmt.Fprintf(&input, "대화:\n사용자: %s\n봇: %s", userText, botText)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		System:      []string{summaryInstruction},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: input.String()}},
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("summary regeneration degraded, keeping previous summary",
			"thread_id", threadID, "error", err)
		return nil
	}

	next := strings.TrimSpace(resp.Text)
	if next == "" {
		s.logger.Warn("summary regeneration returned empty output, keeping previous summary",
			"thread_id", threadID)
		return nil
	}

	return s.Set(ctx, threadID, next)
}
