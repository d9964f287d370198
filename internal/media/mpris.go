package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix    = "org.mpris.MediaPlayer2."
	mprisPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayer    = "org.mpris.MediaPlayer2.Player"
	propertiesIfce = "org.freedesktop.DBus.Properties"
)

// MPRIS discovers media players on the D-Bus session bus.
type MPRIS struct {
	conn *dbus.Conn
}

// NewMPRIS connects to the session bus.
func NewMPRIS() (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &MPRIS{conn: conn}, nil
}

func (m *MPRIS) Name() string { return "mpris" }

func (m *MPRIS) Close() error { return m.conn.Close() }

// Targets returns every player currently reporting PlaybackStatus "Playing".
// Paused players are left alone: a play/pause toggle would start them.
func (m *MPRIS) Targets(ctx context.Context) ([]Target, error) {
	var names []string
	if err := m.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var out []Target
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		obj := m.conn.Object(name, mprisPath)
		var props map[string]dbus.Variant
		if err := obj.CallWithContext(ctx, propertiesIfce+".GetAll", 0, mprisPlayer).Store(&props); err != nil {
			// player vanished between ListNames and GetAll
			continue
		}
		if playbackStatus(props) != "Playing" {
			continue
		}
		out = append(out, &mprisSession{
			obj:  obj,
			name: name,
			caps: capabilitiesFromProps(props),
		})
	}
	return out, nil
}

func playbackStatus(props map[string]dbus.Variant) string {
	v, ok := props["PlaybackStatus"]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

// capabilitiesFromProps maps MPRIS Player properties to a capability mask.
// Stop has no flag of its own and is available whenever CanControl is set.
func capabilitiesFromProps(props map[string]dbus.Variant) Capability {
	if !boolProp(props, "CanControl") {
		return CapNone
	}
	caps := CapStop
	if boolProp(props, "CanPause") {
		caps |= CapPause
	}
	if boolProp(props, "CanPlay") && boolProp(props, "CanPause") {
		caps |= CapPlayPause
	}
	return caps
}

// sourceFromBusName turns "org.mpris.MediaPlayer2.firefox.instance_1_42"
// into "firefox".
func sourceFromBusName(name string) string {
	s := strings.TrimPrefix(name, mprisPrefix)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return s
}

type mprisSession struct {
	obj  dbus.BusObject
	name string
	caps Capability
}

func (s *mprisSession) ID() string               { return s.name }
func (s *mprisSession) Source() string           { return sourceFromBusName(s.name) }
func (s *mprisSession) Capabilities() Capability { return s.caps }

func (s *mprisSession) Send(ctx context.Context, cmd Command) error {
	var method string
	switch cmd {
	case CommandStop:
		method = "Stop"
	case CommandPause:
		method = "Pause"
	case CommandPlayPause:
		method = "PlayPause"
	default:
		return fmt.Errorf("unsupported command %v", cmd)
	}
	return s.obj.CallWithContext(ctx, mprisPlayer+"."+method, 0).Err
}
