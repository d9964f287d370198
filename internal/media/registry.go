package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/loykin/slumber/internal/metrics"
)

// Registry merges every configured Source into one view of active targets.
type Registry struct {
	sources []Source
	logger  *slog.Logger

	mu      sync.RWMutex
	allowed map[string]struct{}
}

func NewRegistry(logger *slog.Logger, sources ...Source) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{sources: sources, logger: logger}
}

// SetAllowed restricts results to targets whose Source matches one of ids
// (case-insensitive). An empty list allows everything.
func (r *Registry) SetAllowed(ids []string) {
	var m map[string]struct{}
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if m == nil {
			m = make(map[string]struct{}, len(ids))
		}
		m[id] = struct{}{}
	}
	r.mu.Lock()
	r.allowed = m
	r.mu.Unlock()
}

func (r *Registry) permitted(t Target) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.allowed == nil {
		return true
	}
	_, ok := r.allowed[strings.ToLower(t.Source())]
	return ok
}

// ActiveTargets queries every source. A failing source contributes nothing;
// the call itself never fails.
func (r *Registry) ActiveTargets(ctx context.Context) []Target {
	out := make([]Target, 0)
	for _, s := range r.sources {
		ts, err := r.query(ctx, s)
		if err != nil {
			metrics.IncRegistryError(s.Name())
			r.logger.Debug("media source unavailable", "source", s.Name(), "error", err)
			continue
		}
		for _, t := range ts {
			if t != nil && r.permitted(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func (r *Registry) query(ctx context.Context, s Source) (ts []Target, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source panicked: %v", p)
		}
	}()
	return s.Targets(ctx)
}
