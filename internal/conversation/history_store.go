package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxPairs   = 10
	defaultHistoryTTL = 24 * time.Hour
)

// HistoryStore keeps the bounded per-thread exchange history in Redis.
// Every successful write refreshes the TTL to the full configured duration.
type HistoryStore struct {
	redis    *redis.Client
	tracer   trace.Tracer
	maxPairs int
	ttl      time.Duration

	locks sync.Map // threadID -> *sync.Mutex
}

// NewHistoryStore creates a history store. maxPairs <= 0 and ttl <= 0 fall
// back to the defaults (10 pairs, 24h).
func NewHistoryStore(redisClient *redis.Client, maxPairs int, ttl time.Duration) *HistoryStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if maxPairs <= 0 {
		maxPairs = defaultMaxPairs
	}
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	return &HistoryStore{
		redis:    redisClient,
		tracer:   otel.Tracer("aide.internal.conversation.history"),
		maxPairs: maxPairs,
		ttl:      ttl,
	}
}

func historyKey(threadID string) string {
	return fmt.Sprintf("history:%s", threadID)
}

// Append records one completed exchange and truncates the history to the most
// recent maxPairs pairs. The read-modify-write is guarded per thread; writes
// from different processes remain last-writer-wins at the Redis layer.
func (s *HistoryStore) Append(ctx context.Context, threadID, userText, botText string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()
	span.SetAttributes(attribute.String("aide.thread_id", threadID))

	lock := s.lockForThread(threadID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.load(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	history = append(history,
		TurnPair{Role: RoleUser, Content: userText},
		TurnPair{Role: RoleAssistant, Content: botText},
	)
	if limit := 2 * s.maxPairs; len(history) > limit {
		history = history[len(history)-limit:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(threadID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Read returns the thread's history, oldest first. Absent or expired threads
// read as empty.
func (s *HistoryStore) Read(ctx context.Context, threadID string) ([]TurnPair, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.read_history")
	defer span.End()
	span.SetAttributes(attribute.String("aide.thread_id", threadID))

	history, err := s.load(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return history, nil
}

// Clear removes the thread's history entirely.
func (s *HistoryStore) Clear(ctx context.Context, threadID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.clear_history")
	defer span.End()

	if err := s.redis.Del(ctx, historyKey(threadID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear history: %w", err)
	}
	return nil
}

// LastPair returns the most recent exchange, or false when no complete pair
// exists yet.
func LastPair(history []TurnPair) (userText, botText string, ok bool) {
	if len(history) < 2 {
		return "", "", false
	}
	q := history[len(history)-2]
	a := history[len(history)-1]
	if q.Role != RoleUser || a.Role != RoleAssistant {
		return "", "", false
	}
	return q.Content, a.Content, true
}

func (s *HistoryStore) load(ctx context.Context, threadID string) ([]TurnPair, error) {
	data, err := s.redis.Get(ctx, historyKey(threadID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []TurnPair
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

func (s *HistoryStore) lockForThread(threadID string) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(threadID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
