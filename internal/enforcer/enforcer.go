// Package enforcer runs the bounded expiry sequence that tries to silence
// whatever is playing once the countdown hits zero.
package enforcer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/loykin/slumber/internal/focus"
	"github.com/loykin/slumber/internal/media"
	"github.com/loykin/slumber/internal/metrics"
)

// Timings are the fixed delays of the sequence.
type Timings struct {
	KeyGap time.Duration // between the global pause and stop keys
	Settle time.Duration // after the keys, before the repeat loop
	Poll   time.Duration // between repeat sweeps
	Window time.Duration // total length of the repeat loop
}

var DefaultTimings = Timings{
	KeyGap: 150 * time.Millisecond,
	Settle: 1500 * time.Millisecond,
	Poll:   500 * time.Millisecond,
	Window: 6000 * time.Millisecond,
}

// sendTimeout bounds a single signal. Signals are also cut off at the end of
// the repeat window.
const sendTimeout = time.Second

// Registry is the query side of media.Registry.
type Registry interface {
	ActiveTargets(ctx context.Context) []media.Target
}

// Report summarizes one run of the sequence.
type Report struct {
	Sweeps    int           `json:"sweeps"`
	Targets   int           `json:"targets"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Fallbacks int           `json:"fallbacks"`
	Aborted   bool          `json:"aborted"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Enforcer struct {
	registry   Registry
	keys       media.KeyEmitter
	claim      focus.Claim
	clock      clockwork.Clock
	timings    Timings
	logger     *slog.Logger
	preferStop atomic.Bool
}

type Option func(*Enforcer)

func WithClock(c clockwork.Clock) Option { return func(e *Enforcer) { e.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(e *Enforcer) { e.logger = l } }

func WithPreferStop(v bool) Option { return func(e *Enforcer) { e.preferStop.Store(v) } }

func withTimings(t Timings) Option { return func(e *Enforcer) { e.timings = t } }

func New(reg Registry, keys media.KeyEmitter, claim focus.Claim, opts ...Option) *Enforcer {
	e := &Enforcer{
		registry: reg,
		keys:     keys,
		claim:    claim,
		clock:    clockwork.NewRealClock(),
		timings:  DefaultTimings,
		logger:   slog.Default(),
	}
	e.preferStop.Store(true)
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetPreferStop changes label preference for posted controls. Safe to call
// while a sequence runs.
func (e *Enforcer) SetPreferStop(v bool) { e.preferStop.Store(v) }

// Enforce runs sweep, keys, focus claim, settle and the repeat loop. Every
// step runs against a fixed schedule, and no signal may outlive the end of
// the repeat window, so the whole run is bounded by KeyGap+Settle+Window no
// matter how many targets hang. It returns early only when ctx is cancelled.
// The focus claim is left held; releasing it belongs to whoever resets the
// timer.
func (e *Enforcer) Enforce(ctx context.Context) Report {
	var rep Report
	start := e.clock.Now()
	defer func() {
		rep.Elapsed = e.clock.Since(start)
		metrics.ObserveEnforcement(rep.Elapsed.Seconds())
		e.logger.Info("expiry enforcement finished",
			"sweeps", rep.Sweeps, "targets", rep.Targets, "sent", rep.Sent,
			"failed", rep.Failed, "fallbacks", rep.Fallbacks, "aborted", rep.Aborted,
			"elapsed", rep.Elapsed)
	}()

	keysDone := start.Add(e.timings.KeyGap)
	loopStart := keysDone.Add(e.timings.Settle)
	deadline := loopStart.Add(e.timings.Window)

	e.sweep(ctx, deadline, &rep)

	e.emit(ctx, deadline, media.KeyPause, &rep)
	if !e.waitUntil(ctx, keysDone) {
		rep.Aborted = true
		return rep
	}
	e.emit(ctx, deadline, media.KeyStop, &rep)

	if e.claim != nil {
		cctx, cancel := e.signalContext(ctx, deadline)
		err := e.claim.Acquire(cctx)
		cancel()
		if err != nil {
			e.logger.Warn("playback focus claim failed", "error", err)
		}
	}

	if !e.waitUntil(ctx, loopStart) {
		rep.Aborted = true
		return rep
	}
	if e.timings.Poll <= 0 {
		return rep
	}

	next := loopStart
	for e.clock.Now().Before(deadline) {
		e.sweep(ctx, deadline, &rep)
		next = next.Add(e.timings.Poll)
		if next.After(deadline) {
			next = deadline
		}
		if !e.waitUntil(ctx, next) {
			rep.Aborted = true
			return rep
		}
	}
	return rep
}

// waitUntil blocks until t on the injected clock. It reports false if ctx
// ended first.
func (e *Enforcer) waitUntil(ctx context.Context, t time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	d := t.Sub(e.clock.Now())
	if d <= 0 {
		return true
	}
	tm := e.clock.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// signalContext bounds one signal by sendTimeout and by what is left of the
// run. A zero deadline applies sendTimeout alone.
func (e *Enforcer) signalContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	budget := sendTimeout
	if !deadline.IsZero() {
		budget = min(budget, deadline.Sub(e.clock.Now()))
	}
	return context.WithTimeout(ctx, budget)
}

func (e *Enforcer) sweep(ctx context.Context, deadline time.Time, rep *Report) {
	rep.Sweeps++
	metrics.IncSweep()
	if e.registry == nil {
		return
	}
	qctx, cancel := e.signalContext(ctx, deadline)
	targets := e.registry.ActiveTargets(qctx)
	cancel()
	rep.Targets += len(targets)
	preferStop := e.preferStop.Load()
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		switch tg := t.(type) {
		case media.Session:
			cmd, ok := SessionCommand(tg.Capabilities())
			if !ok {
				rep.Fallbacks++
				e.emit(ctx, deadline, media.KeyPause, rep)
				continue
			}
			e.send(ctx, deadline, rep, cmd.String(), tg.ID(), func(ctx context.Context) error {
				return tg.Send(ctx, cmd)
			})
		case media.Control:
			a, ok := ChooseAction(tg.Actions(), preferStop)
			if !ok {
				continue
			}
			e.send(ctx, deadline, rep, "action", tg.ID(), func(ctx context.Context) error {
				return tg.Trigger(ctx, a)
			})
		}
	}
}

func (e *Enforcer) emit(ctx context.Context, deadline time.Time, k media.Key, rep *Report) {
	if e.keys == nil {
		return
	}
	e.send(ctx, deadline, rep, "key_"+k.String(), "global", func(ctx context.Context) error {
		return e.keys.Emit(ctx, k)
	})
}

// send runs one signal and records it. Errors and panics count as no effect.
func (e *Enforcer) send(ctx context.Context, deadline time.Time, rep *Report, kind, target string, fn func(context.Context) error) {
	sctx, cancel := e.signalContext(ctx, deadline)
	defer cancel()
	err := safeCall(sctx, fn)
	metrics.RecordSignal(kind, err)
	if err != nil {
		rep.Failed++
		e.logger.Debug("stop signal had no effect", "kind", kind, "target", target, "error", err)
		return
	}
	rep.Sent++
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("signal panicked: %v", p)
		}
	}()
	return fn(ctx)
}
