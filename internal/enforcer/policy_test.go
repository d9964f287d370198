package enforcer

import (
	"testing"

	"github.com/loykin/slumber/internal/media"
)

func TestSessionCommandTieBreak(t *testing.T) {
	cases := []struct {
		caps media.Capability
		want media.Command
		ok   bool
	}{
		{media.CapStop | media.CapPause | media.CapPlayPause, media.CommandStop, true},
		{media.CapPause | media.CapPlayPause, media.CommandPause, true},
		{media.CapPlayPause, media.CommandPlayPause, true},
		{media.CapNone, 0, false},
	}
	for _, c := range cases {
		got, ok := SessionCommand(c.caps)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("SessionCommand(%v) = %v,%v want %v,%v", c.caps, got, ok, c.want, c.ok)
		}
	}
}

func TestChooseAction(t *testing.T) {
	act := func(id, label string, role media.Role) media.Action {
		return media.Action{ID: id, Label: label, Role: role}
	}
	cases := []struct {
		name       string
		actions    []media.Action
		preferStop bool
		want       string
	}{
		{"role pause", []media.Action{act("p", "x", media.RolePause), act("s", "y", media.RoleStop)}, false, "p"},
		{"role stop preferred", []media.Action{act("p", "x", media.RolePause), act("s", "y", media.RoleStop)}, true, "s"},
		{"role stop only", []media.Action{act("s", "y", media.RoleStop)}, true, "s"},
		{"role stop ignored without prefer", []media.Action{act("s", "y", media.RoleStop)}, false, "-"},
		{"role stop falls back to label", []media.Action{act("s", "Stop", media.RoleStop)}, false, "s"},
		{"role pause beats stop label", []media.Action{act("s", "Stop", 0), act("p", "x", media.RolePause)}, false, "p"},
		{"label pause", []media.Action{act("prev", "Previous", 0), act("p", "PAUSE", 0)}, false, "p"},
		{"label first match", []media.Action{act("p", "Pause", 0), act("s", "Stop", 0)}, false, "p"},
		{"label prefer stop", []media.Action{act("p", "Pause", 0), act("s", "Stop playback", 0)}, true, "s"},
		{"label prefer stop absent", []media.Action{act("p", "Pause", 0), act("n", "Next", 0)}, true, "p"},
		{"arabic", []media.Action{act("n", "التالي", 0), act("a", "إيقاف مؤقت", 0)}, false, "a"},
		{"spanish", []media.Action{act("a", "Pausa", 0)}, false, "a"},
		{"play role never chosen", []media.Action{act("pp", "Play/Pause", media.RolePlay)}, false, "-"},
		{"no match", []media.Action{act("n", "Next", 0), act("l", "Like", 0)}, true, "-"},
	}
	for _, c := range cases {
		want := c.want
		got, ok := ChooseAction(c.actions, c.preferStop)
		if want == "-" {
			if ok {
				t.Fatalf("%s: expected no match, got %+v", c.name, got)
			}
			continue
		}
		if !ok || got.ID != want {
			t.Fatalf("%s: got %+v (ok=%v), want %s", c.name, got, ok, want)
		}
	}
}
