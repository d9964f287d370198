package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/slumber/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS timer_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		event TEXT NOT NULL,
		run_id TEXT NOT NULL,
		remaining_seconds INTEGER NOT NULL,
		initial_minutes INTEGER NOT NULL,
		sweeps INTEGER NULL,
		sent INTEGER NULL,
		failed INTEGER NULL
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var sweeps, sent, failed sql.NullInt64
	if e.Enforcement != nil {
		sweeps = sql.NullInt64{Int64: int64(e.Enforcement.Sweeps), Valid: true}
		sent = sql.NullInt64{Int64: int64(e.Enforcement.Sent), Valid: true}
		failed = sql.NullInt64{Int64: int64(e.Enforcement.Failed), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timer_history(occurred_at, event, run_id, remaining_seconds, initial_minutes, sweeps, sent, failed)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.RunID, e.RemainingSeconds, e.InitialDurationMinutes, sweeps, sent, failed)
	return err
}

// Count returns the number of stored events of type t, or all when t is empty.
func (s *Sink) Count(ctx context.Context, t history.EventType) (int, error) {
	var n int
	var err error
	if t == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timer_history;`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timer_history WHERE event=?;`, string(t)).Scan(&n)
	}
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
