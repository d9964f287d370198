package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/slumber/pkg/client"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and all subcommands writing to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	slumberCommand := newCommand(out)

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags, out),
		createStartCommand(slumberCommand, &StartFlags{}),
		createPauseCommand(slumberCommand, &APIFlags{}),
		createCancelCommand(slumberCommand, &APIFlags{}),
		createStatusCommand(slumberCommand, &StatusFlags{}),
		createWatchCommand(slumberCommand, &WatchFlags{}),
		createDurationCommand(slumberCommand, &DurationFlags{}),
		createControlsCommand(slumberCommand),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "slumber",
		Short: "Sleep timer that silences media when it runs out",
		Long: `Slumber counts down and, when the time is up, pauses or stops whatever
media is playing. The countdown lives in a daemon so it survives closing
any UI; the other commands talk to that daemon over HTTP.

Examples:
  slumber serve                      # start the daemon
  slumber start --minutes=45
  slumber pause
  slumber watch
  slumber status --api-url=http://bedroom:8089/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default "+client.DefaultBaseURL+")")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Discover, "discover", false, "find the daemon over mDNS when --api-url is empty")
}

func createServeCommand(globalFlags *GlobalFlags, out io.Writer) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the timer daemon",
		Long: `Run the timer daemon with its HTTP API. A config file can be given as an
argument or with --config; without one the built-in defaults and SLUMBER_*
environment variables are used.

Examples:
  slumber serve
  slumber serve /etc/slumber.toml --daemonize --pidfile=/run/slumber.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.ConfigPath = globalFlags.ConfigPath
			if len(args) == 1 {
				flags.ConfigPath = args[0]
			}
			return serve(cmd.Context(), *flags, out, nil)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon stdout/stderr to this file")
	return cmd
}

func createStartCommand(c command, flags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start or resume the countdown",
		Long: `Resume a paused countdown, or start a new one. Without --minutes a new
countdown uses the daemon's current dial.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *flags)
		},
	}
	cmd.Flags().Int64Var(&flags.Minutes, "minutes", 0, "countdown length in minutes")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createPauseCommand(c command, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the running countdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Pause(cmd.Context(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createCancelCommand(c command, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the countdown without silencing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Cancel(cmd.Context(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand(c command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the timer state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the raw state as JSON")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createWatchCommand(c command, flags *WatchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the countdown live",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Watch(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print one JSON object per state")
	addAPIFlags(cmd, &flags.APIFlags)
	return cmd
}

func createDurationCommand(c command, flags *DurationFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duration",
		Short: "Set the dial while the timer is idle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Duration(cmd.Context(), *flags)
		},
	}
	cmd.Flags().Int64Var(&flags.Minutes, "minutes", 0, "new dial in minutes (required)")
	addAPIFlags(cmd, &flags.APIFlags)
	if err := cmd.MarkFlagRequired("minutes"); err != nil {
		panic(err)
	}
	return cmd
}

func createControlsCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controls",
		Short: "Inspect transport controls posted to the daemon",
	}

	listFlags := &ControlsFlags{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List posted controls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Controls(cmd.Context(), *listFlags)
		},
	}
	addAPIFlags(list, &listFlags.APIFlags)

	rmFlags := &ControlsFlags{}
	rm := &cobra.Command{
		Use:   "remove <id>",
		Short: "Withdraw a posted control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rmFlags.ID = args[0]
			return c.RemoveControl(cmd.Context(), *rmFlags)
		},
	}
	addAPIFlags(rm, &rmFlags.APIFlags)

	cmd.AddCommand(list, rm)
	return cmd
}
