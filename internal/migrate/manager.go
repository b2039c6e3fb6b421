// Package migrate applies plain-SQL schema migrations and seed files from
// disk, tracking what ran in bookkeeping tables.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Status describes one migration file and whether it has been applied.
type Status struct {
	Name    string
	Applied bool
}

// Manager runs migrations and seeds against a database.
type Manager struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewManager constructs a Manager over the given directories.
func NewManager(db *sql.DB, migrationsDir, seedsDir string) *Manager {
	return &Manager{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending migration in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	led := ledger{m.db, migrationsTable}
	if err := led.ensure(ctx); err != nil {
		return err
	}
	applied, err := led.applied(ctx)
	if err != nil {
		return err
	}
	scripts, err := loadScripts(m.migrationsDir, upSuffix)
	if err != nil {
		return err
	}
	for _, sc := range scripts {
		if applied[sc.name] {
			continue
		}
		if err := m.run(ctx, sc.path); err != nil {
			return fmt.Errorf("apply %s: %w", sc.name, err)
		}
		if err := led.record(ctx, sc.name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	led := ledger{m.db, migrationsTable}
	if err := led.ensure(ctx); err != nil {
		return err
	}
	history, err := led.history(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("nothing to roll back")
	}
	last := history[len(history)-1]
	down := filepath.Join(m.migrationsDir, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if _, err := os.Stat(down); err != nil {
		return fmt.Errorf("no down script for %s", last)
	}
	if err := m.run(ctx, down); err != nil {
		return fmt.Errorf("roll back %s: %w", last, err)
	}
	return led.forget(ctx, last)
}

// Seed applies seed files once each, in lexical order.
func (m *Manager) Seed(ctx context.Context) error {
	led := ledger{m.db, seedsTable}
	if err := led.ensure(ctx); err != nil {
		return err
	}
	applied, err := led.applied(ctx)
	if err != nil {
		return err
	}
	scripts, err := loadScripts(m.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, sc := range scripts {
		if applied[sc.name] {
			continue
		}
		if err := m.run(ctx, sc.path); err != nil {
			return fmt.Errorf("seed %s: %w", sc.name, err)
		}
		if err := led.record(ctx, sc.name); err != nil {
			return err
		}
	}
	return nil
}

// Status reports every migration file on disk with its applied state, plus
// applied migrations whose files have gone missing.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	led := ledger{m.db, migrationsTable}
	if err := led.ensure(ctx); err != nil {
		return nil, err
	}
	applied, err := led.applied(ctx)
	if err != nil {
		return nil, err
	}
	scripts, err := loadScripts(m.migrationsDir, upSuffix)
	if err != nil {
		return nil, err
	}
	var out []Status
	seen := map[string]bool{}
	for _, sc := range scripts {
		out = append(out, Status{Name: sc.name, Applied: applied[sc.name]})
		seen[sc.name] = true
	}
	for name := range applied {
		if !seen[name] {
			out = append(out, Status{Name: name + " (file missing)", Applied: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// run executes every statement of the file inside one transaction.
func (m *Manager) run(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ledger is the bookkeeping table recording which files ran.
type ledger struct {
	db    *sql.DB
	table string
}

func (l ledger) ensure(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, l.table))
	return err
}

func (l ledger) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, l.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (l ledger) history(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at`, l.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (l ledger) record(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, l.table),
		name, time.Now().UTC())
	return err
}

func (l ledger) forget(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, l.table), name)
	return err
}

type script struct {
	name string
	path string
}

func loadScripts(dir, suffix string) ([]script, error) {
	if dir == "" {
		return nil, nil
	}
	var out []script
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			out = append(out, script{name: d.Name(), path: path})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// splitStatements breaks a file into statements on semicolons outside of
// single-quoted strings and line comments. Dollar quoting is not handled;
// keep functions out of migration files.
func splitStatements(input string) []string {
	var stmts []string
	var cur strings.Builder
	inString, inComment := false, false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case inComment:
			cur.WriteByte(c)
			if c == '\n' {
				inComment = false
			}
		case inString:
			cur.WriteByte(c)
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			cur.WriteByte(c)
			inString = true
		case c == '-' && i+1 < len(input) && input[i+1] == '-':
			cur.WriteByte(c)
			inComment = true
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
