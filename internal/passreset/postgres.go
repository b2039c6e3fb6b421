package passreset

import (
	"context"
	"database/sql"
	"errors"
)

var _ TokenStore = (*PGTokenStore)(nil)

// PGTokenStore implements TokenStore using PostgreSQL. The table holds at
// most one row per account.
type PGTokenStore struct {
	db *sql.DB
}

func NewPGTokenStore(db *sql.DB) *PGTokenStore {
	return &PGTokenStore{db: db}
}

func (s *PGTokenStore) Upsert(ctx context.Context, token Token) error {
	_, err := s.db.ExecContext(ctx, `
		insert into reset_tokens (user_id, token_hash, expires_at, created_at)
		values ($1,$2,$3,$4)
		on conflict (user_id)
		do update set token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	return err
}

func (s *PGTokenStore) Find(ctx context.Context, userID string) (*Token, error) {
	var t Token
	err := s.db.QueryRowContext(ctx, `
		select user_id, token_hash, expires_at, created_at
		from reset_tokens where user_id = $1
	`, userID).Scan(&t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PGTokenStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from reset_tokens where user_id = $1`, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoToken
	}
	return nil
}
