// Package focus holds the playback-focus claim taken after the timer expires.
// While held, the claim keeps a just-stopped player from getting its output
// back. Acquire and Release are idempotent.
package focus

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

type Claim interface {
	// Acquire takes the claim until Release. Acquiring a held claim is a no-op.
	Acquire(ctx context.Context) error
	// Release gives the claim back. Releasing an unheld claim is a no-op.
	Release(ctx context.Context) error
	Held() bool
}

// Noop never touches the system but tracks whether it is held.
type Noop struct {
	mu   sync.Mutex
	held bool
}

func (n *Noop) Acquire(context.Context) error {
	n.mu.Lock()
	n.held = true
	n.mu.Unlock()
	return nil
}

func (n *Noop) Release(context.Context) error {
	n.mu.Lock()
	n.held = false
	n.mu.Unlock()
	return nil
}

func (n *Noop) Held() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.held
}

// Command claims focus by running external commands, for example
// `pactl set-sink-mute @DEFAULT_SINK@ 1` to acquire and the same with 0 to
// release.
type Command struct {
	AcquireArgv []string
	ReleaseArgv []string
	Timeout     time.Duration

	mu   sync.Mutex
	held bool
}

func NewCommand(acquire, release []string) *Command {
	return &Command{AcquireArgv: acquire, ReleaseArgv: release, Timeout: 2 * time.Second}
}

func (c *Command) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held {
		return nil
	}
	if err := c.run(ctx, c.AcquireArgv); err != nil {
		return fmt.Errorf("acquire focus: %w", err)
	}
	c.held = true
	return nil
}

// Release always marks the claim as released, even when the release command
// fails, so a later Acquire runs again.
func (c *Command) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.held {
		return nil
	}
	c.held = false
	if err := c.run(ctx, c.ReleaseArgv); err != nil {
		return fmt.Errorf("release focus: %w", err)
	}
	return nil
}

func (c *Command) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

func (c *Command) run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q: %w (%s)", argv[0], err, string(out))
	}
	return nil
}
