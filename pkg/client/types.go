package client

import "time"

// State is the timer snapshot served by the daemon.
type State struct {
	RemainingDisplay       string `json:"remaining_display"`
	RemainingSeconds       int64  `json:"remaining_seconds"`
	IsRunning              bool   `json:"is_running"`
	IsPaused               bool   `json:"is_paused"`
	InitialDurationMinutes int64  `json:"initial_duration_minutes"`
	// Phase is idle, running, paused or expiring.
	Phase string `json:"phase"`
}

// IsIdle reports whether neither running nor paused.
func (s State) IsIdle() bool { return !s.IsRunning && !s.IsPaused }

// DurationRequest sets or starts with a number of minutes.
type DurationRequest struct {
	DurationMinutes int64 `json:"duration_minutes"`
}

// DurationResult tells whether a dial change was applied. It is not while
// a countdown is active.
type DurationResult struct {
	Applied bool  `json:"applied"`
	State   State `json:"state"`
}

// Action is one labelled action of a posted control.
type Action struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	// Role is "", "pause", "play" or "stop".
	Role string `json:"role,omitempty"`
	URL  string `json:"url"`
}

// PostedControl is a transport control posted by a companion agent.
type PostedControl struct {
	ID        string    `json:"id,omitempty"`
	Source    string    `json:"source"`
	Category  string    `json:"category,omitempty"`
	Title     string    `json:"title,omitempty"`
	Actions   []Action  `json:"actions"`
	PostedAt  time.Time `json:"posted_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Health is the /healthz response.
type Health struct {
	OK    bool   `json:"ok"`
	Phase string `json:"phase"`
	Self  *struct {
		PID        int32   `json:"pid"`
		CPUPercent float64 `json:"cpu_percent"`
		MemoryMB   float64 `json:"memory_mb"`
		NumThreads int32   `json:"num_threads"`
	} `json:"self,omitempty"`
}

// ErrorResponse is the daemon's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
