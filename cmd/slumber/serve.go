package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/slumber"
	"github.com/loykin/slumber/internal/config"
	"github.com/loykin/slumber/internal/logger"
	"github.com/loykin/slumber/internal/pidfile"
)

const shutdownTimeout = 10 * time.Second

// serve runs the daemon in the foreground until ctx ends, a signal arrives
// or, with exit_on_idle, a countdown finishes. ready, when set, is called
// once everything is listening.
func serve(ctx context.Context, f ServeFlags, out io.Writer, ready func(*slumber.Daemon)) error {
	if f.Daemonize {
		if _, err := daemonize(f.PidFile, f.LogFile, out); err != nil {
			return err
		}
		return nil
	}

	loader := config.NewLoader(f.ConfigPath, nil)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if f.PidFile == "" {
		f.PidFile = cfg.Server.PidFile
	}

	lg, closer, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(lg)

	if f.PidFile != "" {
		if err := pidfile.Claim(f.PidFile, os.Getpid()); err != nil {
			return err
		}
		defer func() { _ = pidfile.Remove(f.PidFile) }()
	}

	d, err := slumber.NewDaemon(ctx, cfg, lg)
	if err != nil {
		return err
	}
	if err := d.Run(); err != nil {
		_ = d.Close(context.Background())
		return err
	}
	if f.ConfigPath != "" {
		loader.Watch(d.Reconfigure)
	}
	if addr := d.APIAddr(); addr != "" {
		_, _ = fmt.Fprintf(out, "slumber listening on %s%s\n", addr, cfg.Server.BasePath)
	}
	if ready != nil {
		ready(d)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
wait:
	for {
		select {
		case <-sigCtx.Done():
			break wait
		case <-d.Idle():
			if cfg.Timer.ExitOnIdle && d.Engine().State().IsIdle() {
				lg.Info("countdown over, exiting")
				break wait
			}
		}
	}

	lg.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.Close(shCtx)
}
