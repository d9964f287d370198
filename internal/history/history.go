package history

import (
	"context"
	"time"
)

// EventType defines the kind of timer event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventResumed   EventType = "resumed"
	EventPaused    EventType = "paused"
	EventCancelled EventType = "cancelled"
	EventExpired   EventType = "expired"
	EventEnforced  EventType = "enforced"
)

// Enforcement summarizes one expiry enforcement run.
type Enforcement struct {
	Sweeps    int   `json:"sweeps"`
	Targets   int   `json:"targets"`
	Sent      int   `json:"sent"`
	Failed    int   `json:"failed"`
	Fallbacks int   `json:"fallbacks"`
	Aborted   bool  `json:"aborted"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Event is one timer lifecycle event exported to analytics systems.
// RunID ties together the events of a single countdown.
type Event struct {
	Type                   EventType    `json:"type"`
	OccurredAt             time.Time    `json:"occurred_at"`
	RunID                  string       `json:"run_id"`
	RemainingSeconds       int64        `json:"remaining_seconds"`
	InitialDurationMinutes int64        `json:"initial_duration_minutes"`
	Enforcement            *Enforcement `json:"enforcement,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
