package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/loykin/slumber/internal/discovery"
	"github.com/loykin/slumber/pkg/client"
)

const discoverTimeout = 3 * time.Second

type command struct {
	out io.Writer
	// find locates a daemon over mDNS; replaced in tests.
	find func(timeout time.Duration) (discovery.Service, error)
}

func newCommand(out io.Writer) command {
	return command{out: out, find: discovery.Find}
}

// apiClient resolves the daemon URL from flags, discovery or the default and
// checks that it answers.
func (c *command) apiClient(ctx context.Context, f APIFlags) (*client.Client, error) {
	apiUrl := f.APIUrl
	if apiUrl == "" && f.Discover {
		svc, err := c.find(discoverTimeout)
		if err != nil {
			return nil, fmt.Errorf("discover daemon: %w", err)
		}
		apiUrl = svc.URL()
	}
	if apiUrl == "" {
		apiUrl = client.DefaultBaseURL
	}
	cl, err := client.New(client.Config{BaseURL: apiUrl, Timeout: f.APITimeout})
	if err != nil {
		return nil, err
	}
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start it first with 'slumber serve'", apiUrl)
	}
	return cl, nil
}

func (c *command) Start(ctx context.Context, f StartFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	var minutes *int64
	if f.Minutes != 0 {
		minutes = &f.Minutes
	}
	st, err := cl.Start(ctx, minutes)
	if err != nil {
		return err
	}
	c.printState(st)
	return nil
}

func (c *command) Pause(ctx context.Context, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	st, err := cl.Pause(ctx)
	if err != nil {
		return err
	}
	c.printState(st)
	return nil
}

func (c *command) Cancel(ctx context.Context, f APIFlags) error {
	cl, err := c.apiClient(ctx, f)
	if err != nil {
		return err
	}
	st, err := cl.Cancel(ctx)
	if err != nil {
		return err
	}
	c.printState(st)
	return nil
}

func (c *command) Status(ctx context.Context, f StatusFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	st, err := cl.State(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		c.printJSON(st)
		return nil
	}
	c.printState(st)
	return nil
}

// Duration changes the dial. The daemon refuses while a countdown is active,
// which is reported but not treated as a failure.
func (c *command) Duration(ctx context.Context, f DurationFlags) error {
	if f.Minutes <= 0 {
		return errors.New("--minutes must be positive")
	}
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	res, err := cl.SetDuration(ctx, f.Minutes)
	if err != nil {
		return err
	}
	if !res.Applied {
		_, _ = fmt.Fprintln(c.out, "duration unchanged: a countdown is active")
	}
	c.printState(res.State)
	return nil
}

// Watch prints every state the daemon publishes until ctx ends or the
// stream closes.
func (c *command) Watch(ctx context.Context, f WatchFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	err = cl.Watch(ctx, func(st client.State) error {
		if f.JSON {
			b, _ := json.Marshal(st)
			_, _ = fmt.Fprintln(c.out, string(b))
			return nil
		}
		c.printState(st)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *command) Controls(ctx context.Context, f ControlsFlags) error {
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	pcs, err := cl.Controls(ctx)
	if err != nil {
		return err
	}
	c.printJSON(pcs)
	return nil
}

func (c *command) RemoveControl(ctx context.Context, f ControlsFlags) error {
	if f.ID == "" {
		return errors.New("control id is required")
	}
	cl, err := c.apiClient(ctx, f.APIFlags)
	if err != nil {
		return err
	}
	return cl.RemoveControl(ctx, f.ID)
}

func (c *command) printState(st client.State) {
	phase := st.Phase
	if phase == "" {
		switch {
		case st.IsRunning:
			phase = "running"
		case st.IsPaused:
			phase = "paused"
		default:
			phase = "idle"
		}
	}
	_, _ = fmt.Fprintf(c.out, "%-8s %s  (dial %d min)\n", phase, st.RemainingDisplay, st.InitialDurationMinutes)
}

func (c *command) printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(c.out, string(b))
}
