package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rejlersabudhabi1-RAD/user-management/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ AccountStore = (*PGAccountStore)(nil)

// PGAccountStore implements AccountStore using PostgreSQL.
type PGAccountStore struct {
	db *sql.DB
}

func NewPGAccountStore(db *sql.DB) *PGAccountStore {
	return &PGAccountStore{db: db}
}

const accountColumns = `id, email, password_hash, first_name, last_name,
	is_superuser, is_staff, is_verified,
	is_first_login, must_reset_password, temp_password_created_at, last_password_change,
	created_at, updated_at`

func (s *PGAccountStore) Create(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	acct.Email = NormalizeEmail(acct.Email)
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (id, email, password_hash, first_name, last_name,
			is_superuser, is_staff, is_verified, is_first_login, must_reset_password)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, acct.ID, acct.Email, acct.PasswordHash, acct.FirstName, acct.LastName,
		acct.IsSuperuser, acct.IsStaff, acct.IsVerified, acct.IsFirstLogin, acct.MustResetPassword)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGAccountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1`, id)
	return scanAccount(row)
}

func (s *PGAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email = $1`, NormalizeEmail(email))
	return scanAccount(row)
}

func (s *PGAccountStore) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set password_hash = $2, last_password_change = $3, is_first_login = false, updated_at = now()
		where id = $1
	`, id, passwordHash, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGAccountStore) SetMustReset(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set must_reset_password = true, temp_password_created_at = $2, updated_at = now()
		where id = $1
	`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGAccountStore) ClearResetState(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set must_reset_password = false, is_first_login = false,
			last_password_change = $2, updated_at = now()
		where id = $1
	`, id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.IsSuperuser, &a.IsStaff, &a.IsVerified,
		&a.IsFirstLogin, &a.MustResetPassword, &a.TempPasswordCreatedAt, &a.LastPasswordChange,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
