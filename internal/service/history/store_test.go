package history_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/zhouzirui/z-haven/backend/internal/service/history"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := history.NewStore()
	ctx := context.Background()

	turn := store.Append(ctx, history.Turn{UserID: "u1", Message: "hi", Reply: "hello"})
	if turn.ID == "" {
		t.Fatal("expected generated turn ID")
	}
	if turn.CreatedAt.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := history.NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store.Append(ctx, history.Turn{UserID: "u1", Message: fmt.Sprintf("msg-%d", i), Reply: "ok"})
	}

	turns := store.Recent(ctx, "u1", 10)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Message != "msg-2" || turns[2].Message != "msg-0" {
		t.Fatalf("expected newest-first ordering, got %v", turns)
	}
}

func TestRecentCapped(t *testing.T) {
	store := history.NewStore()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		store.Append(ctx, history.Turn{UserID: "u1", Message: fmt.Sprintf("msg-%d", i), Reply: "ok"})
	}

	turns := store.Recent(ctx, "u1", 100)
	if len(turns) != history.MaxRecent {
		t.Fatalf("expected cap at %d, got %d", history.MaxRecent, len(turns))
	}
	if turns[0].Message != "msg-29" {
		t.Fatalf("expected newest turn first, got %s", turns[0].Message)
	}
}

func TestRecentUnknownUser(t *testing.T) {
	store := history.NewStore()
	turns := store.Recent(context.Background(), "missing", 5)
	if len(turns) != 0 {
		t.Fatalf("expected empty history, got %v", turns)
	}
}
