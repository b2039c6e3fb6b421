package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The table is append-only; there
// are no update or delete paths.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const auditColumns = `id, actor_id, actor_email, action,
	resource_type, resource_id, resource_repr,
	ip_address, user_agent, changes, metadata, success, error, created_at`

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	changes, err := marshalJSON(entry.Changes)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, actor_email, action,
			resource_type, resource_id, resource_repr,
			ip_address, user_agent, changes, metadata, success, error, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, entry.ID, entry.ActorID, entry.ActorEmail, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.ResourceRepr,
		entry.IPAddress, entry.UserAgent, changes, metadata,
		entry.Success, entry.Error, entry.CreatedAt)
	return err
}

func (s *PGStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from audit_log
		order by created_at desc
		limit $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PGStore) ForActor(ctx context.Context, actorID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+` from audit_log
		where actor_id = $1
		order by created_at desc
		limit $2
	`, actorID, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		var e Entry
		var changes, metadata []byte
		err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorEmail, &e.Action,
			&e.ResourceType, &e.ResourceID, &e.ResourceRepr,
			&e.IPAddress, &e.UserAgent, &changes, &metadata,
			&e.Success, &e.Error, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode audit changes: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
