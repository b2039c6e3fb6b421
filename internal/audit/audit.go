// Package audit records who did what to which resource. Entries are
// append-only; audit failures are logged but never fail the operation that
// triggered them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
	"github.com/rejlersabudhabi1-RAD/user-management/internal/obs"
)

// Entry is one audited operation. ActorEmail is denormalized so the trail
// stays readable after the actor's account is deleted.
type Entry struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id,omitempty"`
	ActorEmail string `json:"actor_email,omitempty"`

	Action       string `json:"action"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	ResourceRepr string `json:"resource_repr,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Changes  map[string]any `json:"changes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Store appends and reads audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	// ForActor returns up to limit entries for the actor, newest first.
	ForActor(ctx context.Context, actorID string, limit int) ([]*Entry, error)
}

// Logger writes entries to the store and mirrors them to the process log.
type Logger struct {
	store Store
	now   func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) LoggerOption {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLogger constructs a Logger. A nil store disables persistence but keeps
// the process-log mirror.
func NewLogger(store Store, opts ...LoggerOption) *Logger {
	l := &Logger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stamps and appends the entry. Persistence failure is logged and
// swallowed: the audited operation must not fail because the trail is down.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	obs.LogEvent(map[string]any{
		"level":         "info",
		"event":         "audit",
		"audit_id":      entry.ID,
		"actor_id":      entry.ActorID,
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"success":       entry.Success,
	})
	if l.store == nil {
		return
	}
	if err := l.store.Append(ctx, &entry); err != nil {
		obs.LogEvent(map[string]any{
			"level":    "error",
			"event":    "audit_append_failure",
			"audit_id": entry.ID,
			"error":    err.Error(),
		})
	}
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(*Entry) bool { return true }), nil
}

func (s *MemoryStore) ForActor(ctx context.Context, actorID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(e *Entry) bool { return e.ActorID == actorID }), nil
}

func (s *MemoryStore) filter(limit int, keep func(*Entry) bool) []*Entry {
	var out []*Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(s.entries[i]) {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out
}
