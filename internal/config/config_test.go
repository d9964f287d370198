package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTOML(t *testing.T, dir, data string) string {
	t.Helper()
	p := filepath.Join(dir, "slumber.toml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Timer.DefaultMinutes != 30 {
		t.Fatalf("default minutes = %d", c.Timer.DefaultMinutes)
	}
	if !c.Server.Enabled || c.Server.Listen == "" || c.Server.BasePath != "/api" || c.Server.Frontend != "gin" {
		t.Fatalf("unexpected server defaults: %+v", c.Server)
	}
	if c.Media.ControlTTL != 2*time.Minute || c.Media.Keys.Timeout != 2*time.Second || !c.Media.MPRIS {
		t.Fatalf("unexpected media defaults: %+v", c.Media)
	}
	if c.Log.File.MaxSizeMB != 10 || c.Log.Level != "info" {
		t.Fatalf("unexpected log defaults: %+v", c.Log)
	}
	if c.Notify.Mode != "log" || c.Server.TLS != nil {
		t.Fatalf("unexpected notify/tls defaults: %+v %+v", c.Notify, c.Server.TLS)
	}
	if !c.Timer.PreferStop {
		t.Fatalf("prefer_stop should default to true")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	p := writeTOML(t, t.TempDir(), `
[timer]
default_minutes = 45
prefer_stop = false

[store]
dsn = "memory://"

[history]
sinks = ["sqlite:///tmp/h.db", "nats://127.0.0.1:4222/slumber.history"]

[server]
listen = "0.0.0.0:9000"
base_path = "/timer"
frontend = "echo"
  [server.tls]
  enabled = true
  dir = "/tmp/certs"
  auto_generate = true

[media]
allowed_sources = ["vlc", "org.videolan.vlc"]
control_ttl = "30s"
  [media.keys]
  pause = ["xdotool", "key", "XF86AudioPause"]

[focus]
acquire = ["pactl", "set-sink-mute", "@DEFAULT_SINK@", "1"]
release = ["pactl", "set-sink-mute", "@DEFAULT_SINK@", "0"]

[schedule]
bedtime = "30 23 * * *"
minutes = 20
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Timer.DefaultMinutes != 45 || c.Timer.PreferStop {
		t.Fatalf("timer: %+v", c.Timer)
	}
	if c.Store.DSN != "memory://" || len(c.History.Sinks) != 2 {
		t.Fatalf("store/history: %+v %+v", c.Store, c.History)
	}
	if c.Server.Frontend != "echo" || c.Server.TLS == nil || !c.Server.TLS.AutoGenerate || c.Server.TLS.Dir != "/tmp/certs" {
		t.Fatalf("server: %+v", c.Server)
	}
	if len(c.Media.AllowedSources) != 2 || c.Media.ControlTTL != 30*time.Second || len(c.Media.Keys.Pause) != 3 {
		t.Fatalf("media: %+v", c.Media)
	}
	if len(c.Focus.Acquire) != 4 || c.Schedule.Minutes != 20 || c.Schedule.Bedtime == "" {
		t.Fatalf("focus/schedule: %+v %+v", c.Focus, c.Schedule)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeTOML(t, t.TempDir(), "[timer]\ndefault_minutes = 45\n")
	t.Setenv("SLUMBER_TIMER_DEFAULT_MINUTES", "12")
	t.Setenv("SLUMBER_SERVER_LISTEN", "127.0.0.1:7000")
	t.Setenv("SLUMBER_TIMER_PREFER_STOP", "false")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Timer.DefaultMinutes != 12 || c.Server.Listen != "127.0.0.1:7000" || c.Timer.PreferStop {
		t.Fatalf("env not applied: %+v %+v", c.Timer, c.Server)
	}
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "slumber.env"), []byte("SLUMBER_STORE_DSN=memory://\n# comment\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	p := writeTOML(t, dir, `env_files = ["slumber.env"]`+"\n")
	t.Cleanup(func() { _ = os.Unsetenv("SLUMBER_STORE_DSN") })
	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Store.DSN != "memory://" {
		t.Fatalf("env file not applied, dsn=%q", c.Store.DSN)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	dir := t.TempDir()
	if _, err := Load(writeTOML(t, dir, "[timer\n")); err == nil {
		t.Fatalf("expected parse error")
	}
	_, err := Load(writeTOML(t, t.TempDir(), "[timer]\ndefault_minutes = 0\n"))
	if !errors.Is(err, ErrInvalidMinutes) {
		t.Fatalf("expected ErrInvalidMinutes, got %v", err)
	}
	_, err = Load(writeTOML(t, t.TempDir(), "[server]\nfrontend = \"nginx\"\n"))
	if !errors.Is(err, ErrInvalidFrontend) {
		t.Fatalf("expected ErrInvalidFrontend, got %v", err)
	}
	_, err = Load(writeTOML(t, t.TempDir(), "[notify]\nmode = \"email\"\n"))
	if !errors.Is(err, ErrInvalidNotify) {
		t.Fatalf("expected ErrInvalidNotify, got %v", err)
	}
	if _, err := Load(writeTOML(t, t.TempDir(), "[schedule]\nbedtime = \"0 23 * * *\"\nminutes = -1\n")); err == nil {
		t.Fatalf("expected schedule minutes error")
	}
	if _, err := Load(writeTOML(t, t.TempDir(), "[schedule]\nlocation = \"Nowhere/Special\"\n")); err == nil {
		t.Fatalf("expected location error")
	}
	if _, err := Load(writeTOML(t, t.TempDir(), "[log]\nfile.max_size_mb = \"big\"\n")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	p := writeTOML(t, dir, "[media]\nallowed_sources = [\"vlc\"]\n")
	l := NewLoader(p, nil)
	if _, err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := make(chan *Config, 4)
	l.Watch(func(c *Config) { got <- c })
	l.Watch(func(*Config) { t.Errorf("second watch must be ignored") })

	if err := os.WriteFile(p, []byte("[media]\nallowed_sources = [\"mpv\", \"spotify\"]\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if len(c.Media.AllowedSources) == 2 && c.Media.AllowedSources[0] == "mpv" {
				return
			}
		case <-deadline:
			t.Fatalf("reload not observed")
		}
	}
}
