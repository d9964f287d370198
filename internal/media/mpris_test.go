package media

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestCapabilitiesFromProps(t *testing.T) {
	v := dbus.MakeVariant
	cases := []struct {
		name  string
		props map[string]dbus.Variant
		want  Capability
	}{
		{"no control", map[string]dbus.Variant{"CanControl": v(false), "CanPause": v(true)}, CapNone},
		{"control only", map[string]dbus.Variant{"CanControl": v(true)}, CapStop},
		{"pause", map[string]dbus.Variant{"CanControl": v(true), "CanPause": v(true)}, CapStop | CapPause},
		{"full", map[string]dbus.Variant{"CanControl": v(true), "CanPause": v(true), "CanPlay": v(true)}, CapStop | CapPause | CapPlayPause},
		{"wrong type", map[string]dbus.Variant{"CanControl": v("yes")}, CapNone},
	}
	for _, c := range cases {
		if got := capabilitiesFromProps(c.props); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestSourceFromBusName(t *testing.T) {
	cases := map[string]string{
		"org.mpris.MediaPlayer2.spotify":                "spotify",
		"org.mpris.MediaPlayer2.firefox.instance_1_42":  "firefox",
		"org.mpris.MediaPlayer2.chromium.instance12345": "chromium",
	}
	for in, want := range cases {
		if got := sourceFromBusName(in); got != want {
			t.Fatalf("sourceFromBusName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlaybackStatus(t *testing.T) {
	if got := playbackStatus(map[string]dbus.Variant{"PlaybackStatus": dbus.MakeVariant("Playing")}); got != "Playing" {
		t.Fatalf("got %q", got)
	}
	if got := playbackStatus(map[string]dbus.Variant{}); got != "" {
		t.Fatalf("got %q", got)
	}
}
