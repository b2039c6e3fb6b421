// Package activity records lightweight per-user activity events, a separate
// stream from the audit trail: activity is what the user did in the product,
// audit is what changed in the system.
package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
)

// Event is one recorded user action.
type Event struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store persists activity events.
type Store interface {
	Append(ctx context.Context, event *Event) error
	// Recent returns up to limit events for the user, newest first.
	Recent(ctx context.Context, userID string, limit int) ([]*Event, error)
	// CountByCategory returns per-category event counts for the user since
	// the given instant.
	CountByCategory(ctx context.Context, userID string, since time.Time) (map[string]int, error)
}

// Tracker is the write/read facade over a Store. Like the audit logger it
// never propagates persistence failures to the tracked operation.
type Tracker struct {
	store Store
	now   func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTracker constructs a Tracker.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track stamps and stores the event. Events without a user or category are
// dropped silently.
func (t *Tracker) Track(ctx context.Context, event Event) {
	if strings.TrimSpace(event.UserID) == "" || strings.TrimSpace(event.Category) == "" {
		return
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.now().UTC()
	}
	if t.store == nil {
		return
	}
	if err := t.store.Append(ctx, &event); err != nil {
		obs.LogEvent(map[string]any{
			"level":    "error",
			"event":    "activity_append_failure",
			"user_id":  event.UserID,
			"category": event.Category,
			"error":    err.Error(),
		})
	}
}

// Recent returns the user's latest events.
func (t *Tracker) Recent(ctx context.Context, userID string, limit int) ([]*Event, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.Recent(ctx, userID, limit)
}

// CountByCategory summarizes the user's events since the given instant.
func (t *Tracker) CountByCategory(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	if t.store == nil {
		return map[string]int{}, nil
	}
	return t.store.CountByCategory(ctx, userID, since)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if s.events[i].UserID == userID {
			cp := *s.events[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountByCategory(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range s.events {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			out[e.Category]++
		}
	}
	return out, nil
}
