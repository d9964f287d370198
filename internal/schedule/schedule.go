// Package schedule starts a countdown automatically at bedtime.
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/loykin/slumber/internal/timer"
)

// Starter is the part of the timer engine the schedule drives.
type Starter interface {
	State() timer.State
	Start(minutes int64)
}

// Bedtime fires a standard five-field cron expression and starts a
// countdown of Minutes when the timer is idle. A running or paused
// countdown is never replaced.
type Bedtime struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	eng       Starter
	minutes   int64
	logger    *slog.Logger

	fired   atomic.Int64
	skipped atomic.Int64
}

type options struct {
	clock    clockwork.Clock
	logger   *slog.Logger
	location *time.Location
}

type Option func(*options)

func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithLocation(loc *time.Location) Option { return func(o *options) { o.location = loc } }

// New schedules expr. Call Start to begin firing.
func New(eng Starter, expr string, minutes int64, opts ...Option) (*Bedtime, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty bedtime expression")
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("bedtime minutes must be positive, got %d", minutes)
	}
	o := options{clock: clockwork.NewRealClock(), logger: slog.Default(), location: time.Local}
	for _, fn := range opts {
		fn(&o)
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(o.clock),
		gocron.WithLocation(o.location),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	b := &Bedtime{scheduler: s, eng: eng, minutes: minutes, logger: o.logger}
	job, err := s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(b.fire),
		gocron.WithName("bedtime"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create bedtime job: %w", err)
	}
	b.job = job
	return b, nil
}

func (b *Bedtime) Start() {
	b.logger.Info("bedtime schedule started", "minutes", b.minutes)
	b.scheduler.Start()
}

func (b *Bedtime) Stop() error {
	return b.scheduler.Shutdown()
}

// NextRun reports when the schedule fires next.
func (b *Bedtime) NextRun() (time.Time, error) {
	return b.job.NextRun()
}

// Fired and Skipped count bedtime runs that started a countdown or found
// one already active.
func (b *Bedtime) Fired() int64   { return b.fired.Load() }
func (b *Bedtime) Skipped() int64 { return b.skipped.Load() }

func (b *Bedtime) fire() {
	if st := b.eng.State(); !st.IsIdle() {
		b.skipped.Add(1)
		b.logger.Info("bedtime skipped, timer already active", "phase", st.Phase.String())
		return
	}
	b.fired.Add(1)
	b.logger.Info("bedtime reached, starting countdown", "minutes", b.minutes)
	b.eng.Start(b.minutes)
}
