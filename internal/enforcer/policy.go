package enforcer

import (
	"strings"

	"github.com/loykin/slumber/internal/media"
)

// stopWords are matched case-insensitively as substrings of action labels
// when a control does not say what its actions mean.
var stopWords = []string{
	"pause",
	"stop",
	"pausa",
	"إيقاف",
	"ايقاف",
	"إيقاف مؤقت",
	"إيقاف التشغيل",
}

// SessionCommand picks the strongest command a session supports.
// ok is false when the session supports none and the caller must fall back
// to a global pause key.
func SessionCommand(caps media.Capability) (cmd media.Command, ok bool) {
	switch {
	case caps.Has(media.CapStop):
		return media.CommandStop, true
	case caps.Has(media.CapPause):
		return media.CommandPause, true
	case caps.Has(media.CapPlayPause):
		return media.CommandPlayPause, true
	}
	return 0, false
}

// ChooseAction picks the control action to fire. Semantic roles win over
// labels: the stop role is only honoured with preferStop, the pause role
// always. Actions whose role is play are never chosen.
func ChooseAction(actions []media.Action, preferStop bool) (media.Action, bool) {
	roles := []media.Role{media.RolePause}
	if preferStop {
		roles = []media.Role{media.RoleStop, media.RolePause}
	}
	for _, r := range roles {
		for _, a := range actions {
			if a.Role == r {
				return a, true
			}
		}
	}

	var first *media.Action
	for i := range actions {
		a := &actions[i]
		if a.Role == media.RolePlay {
			continue
		}
		label := strings.ToLower(a.Label)
		if !matchesStopWord(label) {
			continue
		}
		if preferStop && strings.Contains(label, "stop") {
			return *a, true
		}
		if first == nil {
			first = a
		}
	}
	if first != nil {
		return *first, true
	}
	return media.Action{}, false
}

func matchesStopWord(label string) bool {
	for _, w := range stopWords {
		if strings.Contains(label, w) {
			return true
		}
	}
	return false
}
