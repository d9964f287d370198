package timer

import (
	"fmt"

	"github.com/loykin/slumber/internal/timefmt"
)

// Phase is the engine's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
	// PhaseExpiring covers the enforcement sequence after the countdown
	// reached zero. It is published as paused with nothing remaining.
	PhaseExpiring
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseExpiring:
		return "expiring"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseIdle, PhaseRunning, PhasePaused, PhaseExpiring} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

// State is an immutable snapshot of the timer. IsRunning and IsPaused are
// never both true; when both are false the timer is idle and
// RemainingDisplay shows the initial duration.
type State struct {
	RemainingDisplay       string `json:"remaining_display"`
	RemainingSeconds       int64  `json:"remaining_seconds"`
	IsRunning              bool   `json:"is_running"`
	IsPaused               bool   `json:"is_paused"`
	InitialDurationMinutes int64  `json:"initial_duration_minutes"`
	Phase                  Phase  `json:"phase"`
}

// IsIdle reports whether neither running nor paused.
func (s State) IsIdle() bool { return !s.IsRunning && !s.IsPaused }

func snapshot(p Phase, remaining, initial int64) State {
	st := State{
		RemainingSeconds:       remaining,
		InitialDurationMinutes: initial,
		Phase:                  p,
	}
	switch p {
	case PhaseRunning:
		st.IsRunning = true
	case PhasePaused, PhaseExpiring:
		st.IsPaused = true
	}
	if p == PhaseIdle {
		st.RemainingSeconds = 0
		st.RemainingDisplay = timefmt.FormatMinutes(initial)
	} else {
		st.RemainingDisplay = timefmt.Format(remaining)
	}
	return st
}
