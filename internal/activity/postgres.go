package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, event *Event) error {
	meta := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_activity (id, user_id, category, description, ip_address, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, event.ID, event.UserID, event.Category, event.Description, event.IPAddress, meta, event.CreatedAt)
	return err
}

func (s *PGStore) Recent(ctx context.Context, userID string, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, category, description, ip_address, metadata, created_at
		from user_activity
		where user_id = $1
		order by created_at desc
		limit $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var meta []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Category, &e.Description, &e.IPAddress, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PGStore) CountByCategory(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select category, count(*)
		from user_activity
		where user_id = $1 and created_at >= $2
		group by category
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		out[category] = count
	}
	return out, rows.Err()
}
