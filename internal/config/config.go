package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/slumber/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. SLUMBER_TIMER_DEFAULT_MINUTES.
const EnvPrefix = "SLUMBER"

// Config represents the top-level TOML structure.
type Config struct {
	EnvFiles  []string        `toml:"env_files" mapstructure:"env_files"`
	Timer     TimerConfig     `toml:"timer" mapstructure:"timer"`
	Store     StoreConfig     `toml:"store" mapstructure:"store"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Log       logger.Config   `toml:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Media     MediaConfig     `toml:"media" mapstructure:"media"`
	Focus     FocusConfig     `toml:"focus" mapstructure:"focus"`
	Notify    NotifyConfig    `toml:"notify" mapstructure:"notify"`
	Schedule  ScheduleConfig  `toml:"schedule" mapstructure:"schedule"`
	Discovery DiscoveryConfig `toml:"discovery" mapstructure:"discovery"`
}

type TimerConfig struct {
	DefaultMinutes int64 `toml:"default_minutes" mapstructure:"default_minutes"`
	// PreferStop makes posted controls favour a stop action over pause. On by
	// default.
	PreferStop bool `toml:"prefer_stop" mapstructure:"prefer_stop"`
	// ExitOnIdle stops the daemon once a countdown ends or is cancelled.
	ExitOnIdle bool `toml:"exit_on_idle" mapstructure:"exit_on_idle"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	// Frontend is "gin" or "echo"; echo mounts the same handler.
	Frontend      string     `toml:"frontend" mapstructure:"frontend"`
	PidFile       string     `toml:"pidfile" mapstructure:"pidfile"`
	LogFile       string     `toml:"logfile" mapstructure:"logfile"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type MediaConfig struct {
	MPRIS bool `toml:"mpris" mapstructure:"mpris"`
	// AllowedSources limits which players and control posters are touched.
	// Empty allows all.
	AllowedSources []string      `toml:"allowed_sources" mapstructure:"allowed_sources"`
	ControlTTL     time.Duration `toml:"control_ttl" mapstructure:"control_ttl"`
	Keys           KeysConfig    `toml:"keys" mapstructure:"keys"`
}

// KeysConfig holds argv for the global media keys. Empty uses playerctl.
type KeysConfig struct {
	Pause   []string      `toml:"pause" mapstructure:"pause"`
	Stop    []string      `toml:"stop" mapstructure:"stop"`
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

type FocusConfig struct {
	Acquire []string `toml:"acquire" mapstructure:"acquire"`
	Release []string `toml:"release" mapstructure:"release"`
}

type NotifyConfig struct {
	// Mode is "desktop", "log" or "none".
	Mode string `toml:"mode" mapstructure:"mode"`
}

type ScheduleConfig struct {
	// Bedtime is a cron expression; empty disables the schedule.
	Bedtime  string `toml:"bedtime" mapstructure:"bedtime"`
	Minutes  int64  `toml:"minutes" mapstructure:"minutes"`
	Location string `toml:"location" mapstructure:"location"`
}

type DiscoveryConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Instance string `toml:"instance" mapstructure:"instance"`
}

// DataDir is where the default state database lives.
func DataDir() string {
	if d := os.Getenv("XDG_STATE_HOME"); d != "" {
		return filepath.Join(d, "slumber")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "slumber")
	}
	return filepath.Join(os.TempDir(), "slumber")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_files", []string{})
	v.SetDefault("timer.default_minutes", 30)
	v.SetDefault("timer.prefer_stop", true)
	v.SetDefault("timer.exit_on_idle", false)
	v.SetDefault("store.dsn", "sqlite://"+filepath.Join(DataDir(), "slumber.db"))
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.time", true)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9108")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8089")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.frontend", "gin")
	v.SetDefault("server.pidfile", "")
	v.SetDefault("server.logfile", "")
	v.SetDefault("server.tls_min_version", "")
	v.SetDefault("server.tls_max_version", "")
	v.SetDefault("media.mpris", true)
	v.SetDefault("media.allowed_sources", []string{})
	v.SetDefault("media.control_ttl", "2m")
	v.SetDefault("media.keys.pause", []string{})
	v.SetDefault("media.keys.stop", []string{})
	v.SetDefault("media.keys.timeout", "2s")
	v.SetDefault("focus.acquire", []string{})
	v.SetDefault("focus.release", []string{})
	v.SetDefault("notify.mode", "log")
	v.SetDefault("schedule.bedtime", "")
	v.SetDefault("schedule.minutes", 30)
	v.SetDefault("schedule.location", "")
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.instance", "")
}

// Loader reads one TOML file plus environment overrides and can watch the
// file for changes.
type Loader struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	watching bool
}

// NewLoader prepares a loader. An empty path loads defaults and environment
// only.
func NewLoader(path string, lg *slog.Logger) *Loader {
	if lg == nil {
		lg = slog.Default()
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	}
	return &Loader{v: v, path: path, logger: lg}
}

// Load reads the file, loads env_files into the process environment and
// decodes the result. Variables already set in the environment win over
// env_files.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
	}
	if err := loadEnvFiles(l.v.GetStringSlice("env_files"), l.path); err != nil {
		return nil, err
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Watch calls fn with the new configuration whenever the file changes.
// Reloads that fail to decode or validate are logged and skipped.
func (l *Loader) Watch(fn func(*Config)) {
	if l.path == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watching {
		return
	}
	l.watching = true
	l.v.OnConfigChange(func(e fsnotify.Event) {
		c, err := l.decode()
		if err != nil {
			l.logger.Warn("ignoring config reload", "file", e.Name, "error", err)
			return
		}
		l.logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		fn(c)
	})
	l.v.WatchConfig()
}

// Load is a one-shot NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path, nil).Load()
}

// loadEnvFiles applies .env files; relative paths resolve against the
// config file's directory.
func loadEnvFiles(files []string, cfgPath string) error {
	if len(files) == 0 {
		return nil
	}
	base := ""
	if cfgPath != "" {
		base = filepath.Dir(cfgPath)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		f = filepath.Clean(f)
		if !filepath.IsAbs(f) && base != "" {
			f = filepath.Join(base, f)
		}
		paths = append(paths, f)
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

var (
	ErrInvalidMinutes  = errors.New("minutes must be positive")
	ErrInvalidFrontend = errors.New("server.frontend must be gin or echo")
	ErrInvalidNotify   = errors.New("notify.mode must be desktop, log or none")
)

// Validate checks values that defaults cannot make safe.
func (c *Config) Validate() error {
	if c.Timer.DefaultMinutes <= 0 {
		return fmt.Errorf("timer.default_minutes: %w", ErrInvalidMinutes)
	}
	switch strings.ToLower(c.Server.Frontend) {
	case "", "gin", "echo":
	default:
		return ErrInvalidFrontend
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen required when server is enabled")
	}
	switch strings.ToLower(c.Notify.Mode) {
	case "", "desktop", "log", "none":
	default:
		return ErrInvalidNotify
	}
	if c.Schedule.Bedtime != "" && c.Schedule.Minutes <= 0 {
		return fmt.Errorf("schedule.minutes: %w", ErrInvalidMinutes)
	}
	if c.Schedule.Location != "" {
		if _, err := time.LoadLocation(c.Schedule.Location); err != nil {
			return fmt.Errorf("schedule.location: %w", err)
		}
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return errors.New("metrics.listen required when metrics are enabled")
	}
	return nil
}
