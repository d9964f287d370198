package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/slumber"
	"github.com/loykin/slumber/internal/pidfile"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "slumber.toml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestServeExitsWhenIdle(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
[timer]
exit_on_idle = true

[store]
dsn = "sqlite://`+filepath.ToSlash(filepath.Join(dir, "state.db"))+`"

[server]
listen = "127.0.0.1:0"

[media]
mpris = false

[notify]
mode = "none"

[log]
level = "error"
`)
	pidFile := filepath.Join(dir, "slumber.pid")

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), ServeFlags{ConfigPath: cfgPath, PidFile: pidFile}, &out, func(d *slumber.Daemon) {
			if _, err := os.Stat(pidFile); err != nil {
				t.Errorf("pid file missing while serving: %v", err)
			}
			d.Engine().Start(5)
			d.Engine().Cancel()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not exit after the countdown was cancelled")
	}
	if !strings.Contains(out.String(), "slumber listening on 127.0.0.1:") {
		t.Fatalf("serve output %q", out.String())
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatal("pid file left behind")
	}
}

func TestServeStopsOnContext(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
[store]
dsn = "memory://"

[server]
enabled = false

[media]
mpris = false
`)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ServeFlags{ConfigPath: cfgPath}, &bytes.Buffer{}, func(*slumber.Daemon) { cancel() })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve ignored context cancellation")
	}
}

func TestServeBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "[timer]\ndefault_minutes = -1\n")
	if err := serve(context.Background(), ServeFlags{ConfigPath: cfgPath}, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected validation error")
	}
	if err := serve(context.Background(), ServeFlags{ConfigPath: filepath.Join(dir, "missing.toml")}, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestServeRefusesSecondDaemon(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "[store]\ndsn = \"memory://\"\n[server]\nenabled = false\n[media]\nmpris = false\n")
	pidFile := filepath.Join(dir, "slumber.pid")
	// a live process other than this one already owns the file
	if err := pidfile.Write(pidFile, os.Getppid()); err != nil {
		t.Fatal(err)
	}
	err := serve(context.Background(), ServeFlags{ConfigPath: cfgPath, PidFile: pidFile}, &bytes.Buffer{}, nil)
	if !errors.Is(err, pidfile.ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}
