// Package slumber embeds the sleep-timer daemon: one countdown engine wired to
// its state store, history sinks, media enforcement and HTTP API.
package slumber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/slumber/internal/config"
	"github.com/loykin/slumber/internal/discovery"
	"github.com/loykin/slumber/internal/enforcer"
	"github.com/loykin/slumber/internal/focus"
	"github.com/loykin/slumber/internal/history"
	hfactory "github.com/loykin/slumber/internal/history/factory"
	"github.com/loykin/slumber/internal/media"
	"github.com/loykin/slumber/internal/metrics"
	"github.com/loykin/slumber/internal/notify"
	"github.com/loykin/slumber/internal/schedule"
	"github.com/loykin/slumber/internal/server"
	"github.com/loykin/slumber/internal/store"
	sfactory "github.com/loykin/slumber/internal/store/factory"
	"github.com/loykin/slumber/internal/timer"
)

// Re-exported so embedders can configure and observe the daemon.
type (
	Config = config.Config
	State  = timer.State
)

// LoadConfig reads a TOML file plus SLUMBER_* environment overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

const schemaTimeout = 10 * time.Second

// Daemon owns every long-lived component of one slumber process.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger

	st         store.Store
	writer     *store.Writer
	dispatcher *history.Dispatcher
	registry   *media.Registry
	board      *media.Board
	mpris      *media.MPRIS
	desktop    *notify.Desktop
	enf        *enforcer.Enforcer
	engine     *timer.Engine

	api       *http.Server
	metricsSv *http.Server
	bedtime   *schedule.Bedtime
	adv       *discovery.Advertiser

	idle chan struct{}
}

// NewDaemon builds the components described by cfg and restores the
// persisted timer. Servers, schedule and advertisement start in Run.
func NewDaemon(ctx context.Context, cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{cfg: cfg, logger: logger, idle: make(chan struct{}, 1)}

	st, err := sfactory.NewFromDSN(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sctx, cancel := context.WithTimeout(ctx, schemaTimeout)
	err = st.EnsureSchema(sctx)
	cancel()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	d.st = st
	d.writer = store.NewWriter(st, logger.With("component", "store"))

	var sinks []history.Sink
	for _, dsn := range cfg.History.Sinks {
		s, err := hfactory.NewSinkFromDSN(dsn)
		if err != nil {
			// a broken sink never keeps the timer from running
			logger.Warn("history sink disabled", "dsn", dsn, "error", err)
			continue
		}
		sinks = append(sinks, s)
	}
	d.dispatcher = history.NewDispatcher(logger.With("component", "history"), sinks...)

	d.board = media.NewBoard(media.WithBoardTTL(cfg.Media.ControlTTL))
	sources := []media.Source{d.board}
	if cfg.Media.MPRIS {
		if m, err := media.NewMPRIS(); err != nil {
			logger.Warn("mpris unavailable", "error", err)
		} else {
			d.mpris = m
			sources = append(sources, m)
		}
	}
	d.registry = media.NewRegistry(logger.With("component", "media"), sources...)
	d.registry.SetAllowed(cfg.Media.AllowedSources)

	keys := media.NewCommandKeys(cfg.Media.Keys.Pause, cfg.Media.Keys.Stop)
	if cfg.Media.Keys.Timeout > 0 {
		keys.Timeout = cfg.Media.Keys.Timeout
	}

	var claim focus.Claim = &focus.Noop{}
	if len(cfg.Focus.Acquire) > 0 {
		claim = focus.NewCommand(cfg.Focus.Acquire, cfg.Focus.Release)
	}

	d.enf = enforcer.New(d.registry, keys, claim,
		enforcer.WithLogger(logger.With("component", "enforcer")),
		enforcer.WithPreferStop(cfg.Timer.PreferStop),
	)

	opts := []timer.Option{
		timer.WithLogger(logger.With("component", "timer")),
		timer.WithPersister(d.writer),
		timer.WithExpirer(d.enf),
		timer.WithFocus(claim),
		timer.WithRecorder(d.dispatcher),
		timer.WithDefaultMinutes(cfg.Timer.DefaultMinutes),
		timer.WithIdleHook(d.signalIdle),
	}
	if p := d.presenter(); p != nil {
		opts = append(opts, timer.WithPresenter(p))
	}
	d.engine = timer.New(opts...)

	if err := d.engine.Restore(ctx); err != nil {
		logger.Warn("restore failed, starting idle", "error", err)
	}
	return d, nil
}

func (d *Daemon) presenter() notify.Presenter {
	switch strings.ToLower(d.cfg.Notify.Mode) {
	case "desktop":
		dn, err := notify.NewDesktop()
		if err == nil {
			d.desktop = dn
			return dn
		}
		d.logger.Warn("desktop notifications unavailable, logging instead", "error", err)
		return &notify.Log{Logger: d.logger.With("component", "notify")}
	case "log":
		return &notify.Log{Logger: d.logger.With("component", "notify")}
	default:
		return nil
	}
}

func (d *Daemon) signalIdle() {
	select {
	case d.idle <- struct{}{}:
	default:
	}
}

// Engine is the daemon's timer.
func (d *Daemon) Engine() *timer.Engine { return d.engine }

// Idle yields after a countdown ends or is cancelled. Receivers should check
// Engine().State().IsIdle(), since a new countdown may already have started.
func (d *Daemon) Idle() <-chan struct{} { return d.idle }

// APIAddr is the bound API address, empty when the API is disabled or Run
// has not been called.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.Addr
}

// Run starts the API, metrics endpoint, bedtime schedule and mDNS
// advertisement. It returns once they are listening.
func (d *Daemon) Run() error {
	cfg := d.cfg
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if cfg.Metrics.Listen != "" {
			if err := d.serveMetrics(cfg.Metrics.Listen); err != nil {
				return err
			}
		}
	}

	if cfg.Server.Enabled {
		router := server.NewRouter(d.engine, d.board, cfg.Server.BasePath, d.logger.With("component", "api"))
		api, err := server.NewServer(cfg.Server, router.Handler(), d.logger.With("component", "api"))
		if err != nil {
			return fmt.Errorf("start api: %w", err)
		}
		d.api = api
	}

	if cfg.Schedule.Bedtime != "" {
		opts := []schedule.Option{schedule.WithLogger(d.logger.With("component", "schedule"))}
		if cfg.Schedule.Location != "" {
			loc, err := time.LoadLocation(cfg.Schedule.Location)
			if err != nil {
				return fmt.Errorf("schedule location: %w", err)
			}
			opts = append(opts, schedule.WithLocation(loc))
		}
		b, err := schedule.New(d.engine, cfg.Schedule.Bedtime, cfg.Schedule.Minutes, opts...)
		if err != nil {
			return fmt.Errorf("bedtime schedule: %w", err)
		}
		b.Start()
		d.bedtime = b
	}

	if cfg.Discovery.Enabled && d.api != nil {
		if err := d.advertise(); err != nil {
			d.logger.Warn("mdns advertisement failed", "error", err)
		}
	}
	return nil
}

func (d *Daemon) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	d.metricsSv = &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := d.metricsSv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server stopped", "error", err)
		}
	}()
	d.logger.Info("metrics listening", "addr", d.metricsSv.Addr)
	return nil
}

func (d *Daemon) advertise() error {
	_, portStr, err := net.SplitHostPort(d.api.Addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	d.adv = &discovery.Advertiser{}
	return d.adv.Advertise(discovery.Info{
		Instance: d.cfg.Discovery.Instance,
		Port:     port,
		BasePath: d.cfg.Server.BasePath,
		TLS:      d.api.TLSConfig != nil,
	})
}

// Reconfigure applies the settings that may change while running: the media
// allow-list and the prefer-stop choice.
func (d *Daemon) Reconfigure(cfg *Config) {
	if cfg == nil {
		return
	}
	d.registry.SetAllowed(cfg.Media.AllowedSources)
	d.enf.SetPreferStop(cfg.Timer.PreferStop)
	d.logger.Info("configuration reloaded",
		"allowed_sources", cfg.Media.AllowedSources, "prefer_stop", cfg.Timer.PreferStop)
}

// Close stops the engine first so the final record is written, then drains
// persistence and history and stops the servers.
func (d *Daemon) Close(ctx context.Context) error {
	var errs []error
	if d.bedtime != nil {
		if err := d.bedtime.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.adv != nil {
		d.adv.Stop()
	}
	if err := d.engine.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := d.writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("store writer: %w", err))
	}
	if err := d.st.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := d.dispatcher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	if d.api != nil {
		if err := d.api.Shutdown(ctx); err != nil {
			// open SSE streams keep Shutdown waiting
			_ = d.api.Close()
		}
	}
	if d.metricsSv != nil {
		_ = d.metricsSv.Shutdown(ctx)
	}
	if d.mpris != nil {
		_ = d.mpris.Close()
	}
	if d.desktop != nil {
		_ = d.desktop.Close()
	}
	return errors.Join(errs...)
}
