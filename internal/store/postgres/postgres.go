package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/slumber/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS timer_state(
			namespace TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			remaining_seconds BIGINT NOT NULL,
			initial_minutes BIGINT NOT NULL,
			running BOOLEAN NOT NULL,
			paused BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`)
	return err
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Save(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO timer_state(namespace, version, remaining_seconds, initial_minutes, running, paused, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(namespace) DO UPDATE SET
			version=EXCLUDED.version,
			remaining_seconds=EXCLUDED.remaining_seconds,
			initial_minutes=EXCLUDED.initial_minutes,
			running=EXCLUDED.running,
			paused=EXCLUDED.paused,
			updated_at=EXCLUDED.updated_at;`,
		store.Namespace, rec.Version, rec.RemainingSeconds, rec.InitialDurationMinutes, rec.Running, rec.Paused, rec.UpdatedAt.UTC())
	return err
}

func (p *DB) Load(ctx context.Context) (store.Record, error) {
	var rec store.Record
	err := p.db.QueryRowContext(ctx, `
		SELECT version, remaining_seconds, initial_minutes, running, paused, updated_at
		FROM timer_state WHERE namespace=$1;`, store.Namespace).
		Scan(&rec.Version, &rec.RemainingSeconds, &rec.InitialDurationMinutes, &rec.Running, &rec.Paused, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (p *DB) Clear(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM timer_state WHERE namespace=$1;`, store.Namespace)
	return err
}
