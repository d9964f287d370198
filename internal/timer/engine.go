// Package timer owns the single sleep-timer countdown: its state machine,
// the once-per-second tick, throttled persistence and the hand-off to the
// expiry enforcer.
package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/loykin/slumber/internal/enforcer"
	"github.com/loykin/slumber/internal/focus"
	"github.com/loykin/slumber/internal/history"
	"github.com/loykin/slumber/internal/metrics"
	"github.com/loykin/slumber/internal/notify"
	"github.com/loykin/slumber/internal/store"
)

const (
	DefaultMinutes = 30
	// MaxMinutes caps every countdown at one day.
	MaxMinutes = 24 * 60

	tickInterval = time.Second
	// every tick is persisted once this few seconds remain, otherwise every
	// persistEvery-th tick
	persistTail  = 60
	persistEvery = 5

	syncTimeout    = 5 * time.Second
	releaseTimeout = 3 * time.Second
)

// Persister is the slice of store.Writer the engine uses.
type Persister interface {
	Load(ctx context.Context) (store.Record, error)
	Save(rec store.Record)
	SaveSync(ctx context.Context, rec store.Record) error
	Clear()
}

// Expirer runs the enforcement sequence; *enforcer.Enforcer implements it.
type Expirer interface {
	Enforce(ctx context.Context) enforcer.Report
}

// Recorder receives history events; *history.Dispatcher implements it.
type Recorder interface {
	Record(e history.Event)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine is the one timer of the process. All methods are safe for
// concurrent use. Start, Pause, Cancel, SetDuration, Restore and Shutdown
// are serialized; none of them returns until the tick goroutine they
// replaced has exited.
type Engine struct {
	clock     clockwork.Clock
	logger    *slog.Logger
	persist   Persister
	expirer   Expirer
	claim     focus.Claim
	recorder  Recorder
	presenter notify.Presenter
	onIdle    func()

	ctlMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	remaining int64
	initial   int64
	ticks     int64
	runID     string
	task      *task
	closed    bool

	bc          *Broadcaster[State]
	presentDone chan struct{}
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option      { return func(e *Engine) { e.clock = c } }
func WithLogger(l *slog.Logger) Option        { return func(e *Engine) { e.logger = l } }
func WithPersister(p Persister) Option        { return func(e *Engine) { e.persist = p } }
func WithExpirer(x Expirer) Option            { return func(e *Engine) { e.expirer = x } }
func WithFocus(c focus.Claim) Option          { return func(e *Engine) { e.claim = c } }
func WithRecorder(r Recorder) Option          { return func(e *Engine) { e.recorder = r } }
func WithPresenter(p notify.Presenter) Option { return func(e *Engine) { e.presenter = p } }
func WithIdleHook(fn func()) Option           { return func(e *Engine) { e.onIdle = fn } }
func WithDefaultMinutes(m int64) Option {
	return func(e *Engine) {
		if m > 0 {
			e.initial = clampMinutes(m)
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		initial: DefaultMinutes,
	}
	for _, o := range opts {
		o(e)
	}
	e.bc = NewBroadcaster(snapshot(PhaseIdle, 0, e.initial))
	if e.presenter != nil {
		e.presentDone = make(chan struct{})
		go e.presentLoop()
	}
	metrics.SetCurrentState(PhaseIdle.String(), true)
	return e
}

// State returns the latest published snapshot.
func (e *Engine) State() State { return e.bc.Latest() }

// Observe subscribes to state changes. The channel first yields the current
// state and afterwards only ever the newest one.
func (e *Engine) Observe() (<-chan State, func()) { return e.bc.Subscribe() }

// Start resumes a paused countdown (minutes is ignored) or begins a fresh one
// of minutes*60 seconds. A running countdown is restarted. Zero or negative
// minutes expire immediately; more than MaxMinutes is clamped. Ignored while
// the expiry sequence runs.
func (e *Engine) Start(minutes int64) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	e.mu.Lock()
	if e.closed || e.phase == PhaseExpiring {
		e.mu.Unlock()
		e.logger.Debug("start ignored", "phase", e.phase.String())
		return
	}
	old := e.task
	e.task = nil
	if old != nil {
		old.cancel()
	}
	e.mu.Unlock()
	if old != nil {
		<-old.done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.phase
	evt := history.EventResumed
	if prev == PhasePaused && e.remaining > 0 {
		metrics.IncStart("resume")
	} else {
		evt = history.EventStarted
		minutes = clampMinutes(minutes)
		e.initial = minutes
		e.remaining = minutes * 60
		e.runID = uuid.NewString()
		metrics.IncStart("fresh")
	}
	e.ticks = 0
	e.setPhaseLocked(PhaseRunning)
	e.publishLocked()
	e.saveLocked()
	e.recordLocked(evt, nil)
	e.logger.Info("timer started", "event", string(evt), "remaining", e.remaining, "initial_minutes", e.initial)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	e.task = t
	go e.run(ctx, t)
}

func clampMinutes(m int64) int64 {
	return max(0, min(m, MaxMinutes))
}

// Pause stops the countdown and keeps the remaining seconds. It is a no-op
// unless running. The tick goroutine has exited when Pause returns.
func (e *Engine) Pause() {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	e.mu.Lock()
	if e.phase != PhaseRunning {
		e.mu.Unlock()
		return
	}
	t := e.task
	e.task = nil
	if t != nil {
		t.cancel()
	}
	e.mu.Unlock()
	if t != nil {
		<-t.done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.setPhaseLocked(PhasePaused)
	e.publishLocked()
	e.saveLocked()
	e.recordLocked(history.EventPaused, nil)
	metrics.IncPause()
	e.logger.Info("timer paused", "remaining", e.remaining)
}

// Cancel stops everything, including a running expiry sequence, and returns
// to idle. It is a no-op when already idle.
func (e *Engine) Cancel() {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	e.mu.Lock()
	if e.phase == PhaseIdle {
		e.mu.Unlock()
		return
	}
	t := e.task
	e.task = nil
	if t != nil {
		t.cancel()
	}
	e.mu.Unlock()
	if t != nil {
		<-t.done
	}

	e.mu.Lock()
	if e.phase == PhaseIdle {
		// the expiry sequence finished and reset while we waited
		e.mu.Unlock()
		return
	}
	e.recordLocked(history.EventCancelled, nil)
	e.resetLocked()
	e.mu.Unlock()
	metrics.IncCancel()
	e.logger.Info("timer cancelled")
	e.afterIdle()
}

// SetDuration changes the dial while idle. It reports whether the value was
// applied.
func (e *Engine) SetDuration(minutes int64) bool {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.phase != PhaseIdle || minutes <= 0 {
		return false
	}
	e.initial = clampMinutes(minutes)
	e.publishLocked()
	return true
}

// Restore loads the persisted record once at start-up. A record with time
// left comes back paused, never running. Finished, invalid or incompatible
// records are cleared.
func (e *Engine) Restore(ctx context.Context) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if e.persist == nil {
		return nil
	}
	rec, err := e.persist.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, store.ErrInvalidRecord):
		e.logger.Warn("discarding unreadable timer record", "error", err)
		e.persist.Clear()
		return nil
	case err != nil:
		return err
	}
	if err := rec.Validate(); err != nil {
		e.logger.Warn("discarding incompatible timer record", "error", err)
		e.persist.Clear()
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseIdle {
		return nil
	}
	if rec.InitialDurationMinutes > 0 {
		e.initial = clampMinutes(rec.InitialDurationMinutes)
	}
	if !(rec.Running || rec.Paused) || rec.RemainingSeconds <= 0 {
		e.persist.Clear()
		e.publishLocked()
		return nil
	}
	e.remaining = min(rec.RemainingSeconds, MaxMinutes*60)
	e.runID = uuid.NewString()
	e.setPhaseLocked(PhasePaused)
	e.publishLocked()
	e.saveLocked()
	e.logger.Info("timer restored", "remaining", e.remaining, "was_running", rec.Running)
	return nil
}

// Shutdown stops the tick goroutine and, when a countdown is active, writes
// its record durably before returning. The engine accepts no further
// commands afterwards and every Observe channel is closed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	t := e.task
	e.task = nil
	if t != nil {
		t.cancel()
	}
	e.mu.Unlock()

	if t != nil {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	active := e.phase == PhaseRunning || e.phase == PhasePaused
	rec := e.recordFromStateLocked()
	e.mu.Unlock()

	if e.claim != nil && e.claim.Held() {
		if err := e.claim.Release(ctx); err != nil {
			e.logger.Warn("releasing playback focus failed", "error", err)
		}
	}

	var err error
	if active && e.persist != nil {
		err = e.persist.SaveSync(ctx, rec)
		if err != nil {
			e.logger.Error("final timer write failed", "error", err)
		}
	}
	e.bc.Close()
	if e.presentDone != nil {
		select {
		case <-e.presentDone:
		case <-ctx.Done():
		}
	}
	return err
}

func (e *Engine) run(ctx context.Context, t *task) {
	defer close(t.done)
	e.mu.Lock()
	for {
		if ctx.Err() != nil {
			e.mu.Unlock()
			return
		}
		if e.remaining <= 0 {
			rec := e.enterExpiringLocked()
			e.mu.Unlock()
			e.expire(ctx, t, rec)
			return
		}
		e.mu.Unlock()

		if !e.sleep(ctx, tickInterval) {
			return
		}

		e.mu.Lock()
		if ctx.Err() != nil {
			e.mu.Unlock()
			return
		}
		e.remaining--
		e.ticks++
		if e.remaining > 0 {
			e.publishLocked()
			if e.remaining <= persistTail || e.ticks%persistEvery == 0 {
				e.saveLocked()
			}
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	tm := e.clock.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

// enterExpiringLocked publishes the finished state (paused, nothing left)
// and returns the record to persist.
func (e *Engine) enterExpiringLocked() store.Record {
	e.remaining = 0
	e.setPhaseLocked(PhaseExpiring)
	e.publishLocked()
	return store.Record{
		Version:                store.CurrentVersion,
		InitialDurationMinutes: e.initial,
		Paused:                 true,
		UpdatedAt:              e.clock.Now().UTC(),
	}
}

func (e *Engine) expire(ctx context.Context, t *task, rec store.Record) {
	if e.persist != nil {
		sctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		if err := e.persist.SaveSync(sctx, rec); err != nil {
			e.logger.Warn("persisting finished timer failed", "error", err)
		}
		cancel()
	}
	metrics.IncExpiry()
	e.mu.Lock()
	e.recordLocked(history.EventExpired, nil)
	e.mu.Unlock()
	e.logger.Info("timer expired, enforcing stop")

	var rep enforcer.Report
	if e.expirer != nil {
		rep = e.expirer.Enforce(ctx)
	}

	e.mu.Lock()
	e.recordLocked(history.EventEnforced, &history.Enforcement{
		Sweeps:    rep.Sweeps,
		Targets:   rep.Targets,
		Sent:      rep.Sent,
		Failed:    rep.Failed,
		Fallbacks: rep.Fallbacks,
		Aborted:   rep.Aborted,
		ElapsedMS: rep.Elapsed.Milliseconds(),
	})
	if ctx.Err() != nil || e.task != t {
		// Cancel or Shutdown took over and finishes the reset itself.
		e.mu.Unlock()
		return
	}
	e.task = nil
	e.resetLocked()
	e.mu.Unlock()
	e.afterIdle()
}

func (e *Engine) resetLocked() {
	e.remaining = 0
	e.ticks = 0
	e.runID = ""
	e.setPhaseLocked(PhaseIdle)
	e.publishLocked()
	if e.persist != nil {
		e.persist.Clear()
	}
}

func (e *Engine) afterIdle() {
	if e.claim != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		if err := e.claim.Release(ctx); err != nil {
			e.logger.Warn("releasing playback focus failed", "error", err)
		}
		cancel()
	}
	if e.onIdle != nil {
		e.onIdle()
	}
}

func (e *Engine) setPhaseLocked(p Phase) {
	if p == e.phase {
		return
	}
	metrics.RecordStateTransition(e.phase.String(), p.String())
	metrics.SetCurrentState(e.phase.String(), false)
	metrics.SetCurrentState(p.String(), true)
	e.phase = p
}

func (e *Engine) publishLocked() {
	st := snapshot(e.phase, e.remaining, e.initial)
	metrics.SetRemaining(st.RemainingSeconds)
	e.bc.Publish(st)
}

func (e *Engine) recordFromStateLocked() store.Record {
	return store.Record{
		Version:                store.CurrentVersion,
		RemainingSeconds:       e.remaining,
		InitialDurationMinutes: e.initial,
		Running:                e.phase == PhaseRunning,
		Paused:                 e.phase == PhasePaused || e.phase == PhaseExpiring,
		UpdatedAt:              e.clock.Now().UTC(),
	}
}

func (e *Engine) saveLocked() {
	if e.persist != nil {
		e.persist.Save(e.recordFromStateLocked())
	}
}

func (e *Engine) recordLocked(t history.EventType, enf *history.Enforcement) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(history.Event{
		Type:                   t,
		OccurredAt:             e.clock.Now().UTC(),
		RunID:                  e.runID,
		RemainingSeconds:       e.remaining,
		InitialDurationMinutes: e.initial,
		Enforcement:            enf,
	})
}

// presentLoop mirrors published state into the notification presenter.
func (e *Engine) presentLoop() {
	defer close(e.presentDone)
	ch, cancel := e.bc.Subscribe()
	defer cancel()
	shown := false
	for st := range ch {
		ctx, c := context.WithTimeout(context.Background(), syncTimeout)
		var err error
		if st.IsIdle() {
			if shown {
				err = e.presenter.Dismiss(ctx)
				shown = false
			}
		} else {
			err = e.presenter.Present(ctx, st.RemainingDisplay)
			shown = true
		}
		c()
		if err != nil {
			e.logger.Debug("notification update failed", "error", err)
		}
	}
	if shown {
		ctx, c := context.WithTimeout(context.Background(), syncTimeout)
		_ = e.presenter.Dismiss(ctx)
		c()
	}
}
