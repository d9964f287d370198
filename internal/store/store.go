package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Namespace is the single fixed key under which the timer record lives.
const Namespace = "slumber.timer"

// CurrentVersion is the schema version written with every record.
// Records carrying any other version are treated as incompatible.
const CurrentVersion = 1

var (
	// ErrNotFound is returned by Load when nothing has been saved.
	ErrNotFound = errors.New("store: record not found")
	// ErrInvalidRecord marks a loaded record that fails validation.
	ErrInvalidRecord = errors.New("store: invalid record")
)

// Record is the durable mirror of the timer, enough to resume after the
// process dies. UpdatedAt is informational and kept in UTC.
type Record struct {
	Version                int       `json:"version" cbor:"1,keyasint"`
	RemainingSeconds       int64     `json:"remaining_seconds" cbor:"2,keyasint"`
	InitialDurationMinutes int64     `json:"initial_duration_minutes" cbor:"3,keyasint"`
	Running                bool      `json:"running" cbor:"4,keyasint"`
	Paused                 bool      `json:"paused" cbor:"5,keyasint"`
	UpdatedAt              time.Time `json:"updated_at" cbor:"6,keyasint"`
}

// Validate checks the record against the current schema.
func (r Record) Validate() error {
	if r.Version != CurrentVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrInvalidRecord, r.Version, CurrentVersion)
	}
	if r.RemainingSeconds < 0 || r.InitialDurationMinutes < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidRecord)
	}
	if r.Running && r.Paused {
		return fmt.Errorf("%w: running and paused both set", ErrInvalidRecord)
	}
	return nil
}

// Store persists the single timer record.
// Load returns ErrNotFound when no record exists.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (Record, error)
	Clear(ctx context.Context) error
	Close() error
}
