package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/slumber/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if p != ":memory:" && !strings.HasPrefix(p, "file:") {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS timer_state(
			namespace TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			remaining_seconds INTEGER NOT NULL,
			initial_minutes INTEGER NOT NULL,
			running BOOLEAN NOT NULL,
			paused BOOLEAN NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Save(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timer_state(namespace, version, remaining_seconds, initial_minutes, running, paused, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
			version=excluded.version,
			remaining_seconds=excluded.remaining_seconds,
			initial_minutes=excluded.initial_minutes,
			running=excluded.running,
			paused=excluded.paused,
			updated_at=excluded.updated_at;`,
		store.Namespace, rec.Version, rec.RemainingSeconds, rec.InitialDurationMinutes, rec.Running, rec.Paused, rec.UpdatedAt.UTC())
	return err
}

func (s *DB) Load(ctx context.Context) (store.Record, error) {
	var rec store.Record
	row := s.db.QueryRowContext(ctx, `
		SELECT version, remaining_seconds, initial_minutes, running, paused, updated_at
		FROM timer_state WHERE namespace=?;`, store.Namespace)
	err := row.Scan(&rec.Version, &rec.RemainingSeconds, &rec.InitialDurationMinutes, &rec.Running, &rec.Paused, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (s *DB) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM timer_state WHERE namespace=?;`, store.Namespace)
	return err
}
