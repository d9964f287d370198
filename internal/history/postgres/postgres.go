package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/slumber/internal/history"
)

// Sink writes history events to PostgreSQL.
type Sink struct {
	db *sql.DB
}

func New(dsn string) (*Sink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Sink{db: db}, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS timer_history(
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		event TEXT NOT NULL,
		run_id TEXT NOT NULL,
		remaining_seconds BIGINT NOT NULL,
		initial_minutes BIGINT NOT NULL,
		enforcement JSONB NULL
	);`)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var enf any
	if e.Enforcement != nil {
		b, err := json.Marshal(e.Enforcement)
		if err != nil {
			return err
		}
		enf = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timer_history(occurred_at, event, run_id, remaining_seconds, initial_minutes, enforcement)
		VALUES($1, $2, $3, $4, $5, $6);`,
		e.OccurredAt.UTC(), string(e.Type), e.RunID, e.RemainingSeconds, e.InitialDurationMinutes, enf)
	return err
}

func (s *Sink) Close() error { return s.db.Close() }
