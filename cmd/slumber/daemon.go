package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/loykin/slumber/internal/pidfile"
)

// childArgs strips the daemon flags from args and re-appends pidfile and
// logfile so the child owns them.
func childArgs(args []string, pidFile, logFile string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--daemonize" || strings.HasPrefix(arg, "--daemonize="):
			continue
		case arg == "--pidfile" || arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--pidfile=") || strings.HasPrefix(arg, "--logfile="):
			continue
		}
		out = append(out, arg)
	}
	if pidFile != "" {
		out = append(out, "--pidfile", pidFile)
	}
	if logFile != "" {
		out = append(out, "--logfile", logFile)
	}
	return out
}

// daemonize re-executes the binary in the background without --daemonize
// and reports the child PID to out. The caller exits afterwards.
func daemonize(pidFile, logFile string, out io.Writer) (int, error) {
	if !isDaemonSupported() {
		return 0, errors.New("daemonize is not supported on this platform")
	}
	if pidFile != "" {
		if alive, pid, err := pidfile.Alive(pidFile); err == nil && alive {
			return 0, fmt.Errorf("%w with pid %d (%s)", pidfile.ErrRunning, pid, pidFile)
		}
	}
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec G204
	cmd := exec.Command(executable, childArgs(os.Args[1:], pidFile, logFile)...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil
	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := cmd.Process.Pid
	if pidFile != "" {
		if err := pidfile.Write(pidFile, pid); err != nil {
			return pid, fmt.Errorf("failed to write PID file: %w", err)
		}
	}
	_, _ = fmt.Fprintf(out, "Daemon started with PID %d\n", pid)
	_ = cmd.Process.Release()
	return pid, nil
}
