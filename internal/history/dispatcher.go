package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/slumber/internal/metrics"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 5 * time.Second
)

// Dispatcher fans events out to sinks on a background goroutine so callers
// never block. When the queue is full new events are dropped and counted.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	queue  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Event, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Record queues e for every sink.
func (d *Dispatcher) Record(e Event) {
	if len(d.sinks) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		metrics.IncHistoryDropped()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for e := range d.queue {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := s.Send(ctx, e); err != nil {
				d.logger.Warn("history sink failed", "event", string(e.Type), "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events, then closes sinks that implement io.Closer.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return nil
}
