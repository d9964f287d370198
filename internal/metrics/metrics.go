package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	timerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "starts_total",
			Help:      "Number of countdown starts by mode (fresh or resume).",
		}, []string{"mode"},
	)
	timerPauses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "pauses_total",
			Help:      "Number of pauses.",
		},
	)
	timerCancels = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "cancels_total",
			Help:      "Number of explicit cancels.",
		},
	)
	timerExpiries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "expiries_total",
			Help:      "Number of countdowns that reached zero.",
		},
	)
	remainingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "remaining_seconds",
			Help:      "Seconds left on the countdown.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "state_transitions_total",
			Help:      "Number of transitions between timer phases.",
		}, []string{"from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "slumber",
			Subsystem: "timer",
			Name:      "current_state",
			Help:      "Current timer phase (1 = active phase, 0 = inactive).",
		}, []string{"state"},
	)

	enforcementSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "enforcer",
			Name:      "sweeps_total",
			Help:      "Number of registry sweeps during expiry enforcement.",
		},
	)
	enforcementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "slumber",
			Subsystem: "enforcer",
			Name:      "duration_seconds",
			Help:      "Time spent in the expiry enforcement sequence.",
			Buckets:   []float64{1, 2, 4, 6, 8, 10, 15},
		},
	)
	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "enforcer",
			Name:      "signals_total",
			Help:      "Stop signals sent to media targets by kind and result.",
		}, []string{"kind", "result"},
	)

	registryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "media",
			Name:      "registry_errors_total",
			Help:      "Discovery failures per media source.",
		}, []string{"source"},
	)
	storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "State store writes by operation and result.",
		}, []string{"op", "result"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slumber",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the dispatch queue was full.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		timerStarts, timerPauses, timerCancels, timerExpiries, remainingSeconds, stateTransitions, currentStates,
		enforcementSweeps, enforcementDuration, signals, registryErrors, storeWrites, historyDropped,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(mode string) {
	if regOK.Load() {
		timerStarts.WithLabelValues(mode).Inc()
	}
}
func IncPause() {
	if regOK.Load() {
		timerPauses.Inc()
	}
}
func IncCancel() {
	if regOK.Load() {
		timerCancels.Inc()
	}
}
func IncExpiry() {
	if regOK.Load() {
		timerExpiries.Inc()
	}
}
func SetRemaining(seconds int64) {
	if regOK.Load() {
		remainingSeconds.Set(float64(seconds))
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(state).Set(value)
	}
}

func IncSweep() {
	if regOK.Load() {
		enforcementSweeps.Inc()
	}
}

func ObserveEnforcement(seconds float64) {
	if regOK.Load() {
		enforcementDuration.Observe(seconds)
	}
}

// RecordSignal counts one send attempt. kind is e.g. "stop", "pause",
// "play_pause", "key_pause", "action".
func RecordSignal(kind string, err error) {
	if regOK.Load() {
		signals.WithLabelValues(kind, result(err)).Inc()
	}
}

func IncRegistryError(source string) {
	if regOK.Load() {
		registryErrors.WithLabelValues(source).Inc()
	}
}

func RecordStoreWrite(op string, err error) {
	if regOK.Load() {
		storeWrites.WithLabelValues(op, result(err)).Inc()
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
