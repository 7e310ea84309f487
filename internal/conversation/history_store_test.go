package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestHistoryAppendKeepsMostRecentPairs(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHistoryStore(client, 2, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if err := store.Append(ctx, "t1", q, a); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	history, err := store.Read(ctx, "t1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if history[0].Content != "question 3" || history[3].Content != "answer 4" {
		t.Fatalf("oldest entries were not evicted: %+v", history)
	}
}

func TestHistoryAlternation(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHistoryStore(client, 5, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, "t1", "q", "a"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	history, err := store.Read(ctx, "t1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(history)%2 != 0 {
		t.Fatalf("history length %d is odd", len(history))
	}
	for i, turn := range history {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if turn.Role != want {
			t.Fatalf("history[%d].Role = %q, want %q", i, turn.Role, want)
		}
	}
}

func TestHistoryTTLRefreshOnWrite(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewHistoryStore(client, 10, 24*time.Hour)
	ctx := context.Background()

	if err := store.Append(ctx, "t1", "q1", "a1"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	mr.FastForward(23 * time.Hour)

	if err := store.Append(ctx, "t1", "q2", "a2"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ttl := mr.TTL("history:t1"); ttl != 24*time.Hour {
		t.Fatalf("TTL after second write = %v, want 24h", ttl)
	}
}

func TestHistoryExpiresAsAWhole(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewHistoryStore(client, 10, time.Hour)
	ctx := context.Background()

	if err := store.Append(ctx, "t1", "q", "a"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	history, err := store.Read(ctx, "t1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if history != nil {
		t.Fatalf("expected expired thread to read as empty, got %d entries", len(history))
	}
}

func TestHistoryReadUnknownThread(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewHistoryStore(client, 10, time.Hour)

	history, err := store.Read(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if history != nil {
		t.Fatalf("expected nil history, got %+v", history)
	}
}

func TestHistoryClear(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewHistoryStore(client, 10, time.Hour)
	ctx := context.Background()

	if err := store.Append(ctx, "t1", "q", "a"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Clear(ctx, "t1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if mr.Exists("history:t1") {
		t.Fatal("history key still exists after Clear")
	}
}

func TestLastPair(t *testing.T) {
	if _, _, ok := LastPair(nil); ok {
		t.Fatal("LastPair on empty history should report no pair")
	}

	history := []TurnPair{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
		{Role: RoleAssistant, Content: "a2"},
	}
	q, a, ok := LastPair(history)
	if !ok {
		t.Fatal("LastPair should find the most recent exchange")
	}
	if q != "q2" || a != "a2" {
		t.Fatalf("LastPair = (%q, %q), want (q2, a2)", q, a)
	}
}
