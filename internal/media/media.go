// Package media discovers playing media on the host and sends it transport
// commands. Nothing here is owned by slumber: targets are re-queried every
// time they are needed.
package media

import (
	"context"
	"fmt"
	"strings"
)

// Capability is a bitmask of the transport commands a session accepts.
type Capability uint8

const (
	CapStop Capability = 1 << iota
	CapPause
	CapPlayPause

	CapNone Capability = 0
)

func (c Capability) Has(x Capability) bool { return c&x == x && x != 0 }

func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	if c.Has(CapStop) {
		parts = append(parts, "stop")
	}
	if c.Has(CapPause) {
		parts = append(parts, "pause")
	}
	if c.Has(CapPlayPause) {
		parts = append(parts, "play_pause")
	}
	return strings.Join(parts, "|")
}

// Command is a transport command sent directly to a session.
type Command int

const (
	CommandStop Command = iota
	CommandPause
	CommandPlayPause
)

func (c Command) String() string {
	switch c {
	case CommandStop:
		return "stop"
	case CommandPause:
		return "pause"
	case CommandPlayPause:
		return "play_pause"
	default:
		return "unknown"
	}
}

// Role is the semantic meaning a control action advertises, if any.
type Role int

const (
	RoleUnspecified Role = iota
	RolePause
	RolePlay
	RoleStop
)

func (r Role) String() string {
	switch r {
	case RolePause:
		return "pause"
	case RolePlay:
		return "play"
	case RoleStop:
		return "stop"
	default:
		return ""
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "":
		*r = RoleUnspecified
	case "pause":
		*r = RolePause
	case "play":
		*r = RolePlay
	case "stop":
		*r = RoleStop
	default:
		return fmt.Errorf("unknown action role %q", string(b))
	}
	return nil
}

// Action is one button exposed by a posted transport control.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Role  Role   `json:"role,omitempty"`
	URL   string `json:"url"`
}

// Target is anything the enforcer can try to silence.
type Target interface {
	ID() string
	// Source identifies the application behind the target; it is what
	// allow-lists match against.
	Source() string
}

// Session is a media session object exposing direct transport commands.
type Session interface {
	Target
	Capabilities() Capability
	Send(ctx context.Context, cmd Command) error
}

// Control is a posted notification-like control exposing labelled actions.
type Control interface {
	Target
	Actions() []Action
	Trigger(ctx context.Context, a Action) error
}

// Source discovers targets of one kind.
type Source interface {
	Name() string
	Targets(ctx context.Context) ([]Target, error)
}

// Key is a synthetic global media key.
type Key int

const (
	KeyPause Key = iota
	KeyStop
)

func (k Key) String() string {
	if k == KeyStop {
		return "stop"
	}
	return "pause"
}

// KeyEmitter sends global media keys that are not addressed to any session.
type KeyEmitter interface {
	Emit(ctx context.Context, k Key) error
}
