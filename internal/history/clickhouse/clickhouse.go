package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/slumber/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port of the native protocol) and pings it.
func New(addr, database, table string) (*Sink, error) {
	if database == "" {
		database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Sink{
		conn:  conn,
		table: table,
	}, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			type String,
			occurred_at DateTime64(6),
			run_id String,
			remaining_seconds Int64,
			initial_minutes Int64,
			sweeps Nullable(Int32),
			sent Nullable(Int32),
			failed Nullable(Int32)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, run_id)`, s.table))
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, run_id, remaining_seconds, initial_minutes, sweeps, sent, failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var sweeps, sent, failed *int32
	if e.Enforcement != nil {
		sw, se, fa := int32(e.Enforcement.Sweeps), int32(e.Enforcement.Sent), int32(e.Enforcement.Failed)
		sweeps, sent, failed = &sw, &se, &fa
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.RunID,
		e.RemainingSeconds,
		e.InitialDurationMinutes,
		sweeps,
		sent,
		failed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
