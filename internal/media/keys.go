package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var ErrNoKeyCommand = errors.New("media: no command configured for key")

// DefaultKeyCommands uses playerctl, which reaches every MPRIS player
// including ones that hide from direct discovery.
var DefaultKeyCommands = map[Key][]string{
	KeyPause: {"playerctl", "--all-players", "pause"},
	KeyStop:  {"playerctl", "--all-players", "stop"},
}

// CommandKeys emits global media keys by running an external command per key,
// for example `xdotool key XF86AudioPause`.
type CommandKeys struct {
	Commands map[Key][]string
	Timeout  time.Duration
}

func NewCommandKeys(pause, stop []string) *CommandKeys {
	cmds := map[Key][]string{
		KeyPause: DefaultKeyCommands[KeyPause],
		KeyStop:  DefaultKeyCommands[KeyStop],
	}
	if len(pause) > 0 {
		cmds[KeyPause] = pause
	}
	if len(stop) > 0 {
		cmds[KeyStop] = stop
	}
	return &CommandKeys{Commands: cmds, Timeout: 2 * time.Second}
}

func (c *CommandKeys) Emit(ctx context.Context, k Key) error {
	argv := c.Commands[k]
	if len(argv) == 0 || argv[0] == "" {
		return fmt.Errorf("%w: %s", ErrNoKeyCommand, k)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s key command %q: %w (%s)", k, argv[0], err, string(out))
	}
	return nil
}
