package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Append(ctx context.Context, entry *Entry) error {
	return errors.New("trail down")
}
func (failingStore) Recent(ctx context.Context, limit int) ([]*Entry, error) { return nil, nil }
func (failingStore) ForActor(ctx context.Context, actorID string, limit int) ([]*Entry, error) {
	return nil, nil
}

func TestLoggerStampsAndAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	logger := NewLogger(store, WithClock(func() time.Time { return at }))

	logger.Record(ctx, Entry{
		ActorID:      "user-1",
		ActorEmail:   "user@example.com",
		Action:       "update",
		ResourceType: "roles",
		ResourceID:   "role-1",
		Success:      true,
	})

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.ID == "" {
		t.Fatal("entry not assigned an id")
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, at)
	}
	if got.Action != "update" || got.ResourceType != "roles" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestLoggerSwallowsStoreFailure(t *testing.T) {
	logger := NewLogger(failingStore{})
	// Must not panic or propagate.
	logger.Record(context.Background(), Entry{Action: "delete", Success: false, Error: "denied"})
}

func TestMemoryStoreOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := NewLogger(store)

	logger.Record(ctx, Entry{ActorID: "a", Action: "create", Success: true})
	logger.Record(ctx, Entry{ActorID: "b", Action: "update", Success: true})
	logger.Record(ctx, Entry{ActorID: "a", Action: "delete", Success: true})

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Action != "delete" || recent[1].Action != "update" {
		t.Fatalf("recent = %+v", recent)
	}

	forA, err := store.ForActor(ctx, "a", 10)
	if err != nil {
		t.Fatalf("for actor: %v", err)
	}
	if len(forA) != 2 || forA[0].Action != "delete" || forA[1].Action != "create" {
		t.Fatalf("for actor = %+v", forA)
	}
}
