package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/slumber/internal/metrics"
)

const defaultWriteTimeout = 5 * time.Second

type opKind int

const (
	opSave opKind = iota
	opClear
)

func (k opKind) String() string {
	if k == opClear {
		return "clear"
	}
	return "save"
}

type writeOp struct {
	kind opKind
	rec  Record
	seq  uint64
}

// Writer performs Store writes off the caller's goroutine.
// Only the most recent pending operation is kept; older pending ones are
// superseded. Operations are applied in issue order and a write never lands
// after a newer one has been applied.
type Writer struct {
	st     Store
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending *writeOp
	closed  bool

	execMu  sync.Mutex
	applied uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewWriter starts the background writer for st.
func NewWriter(st Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		st:     st,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Save queues rec and returns immediately.
func (w *Writer) Save(rec Record) { w.enqueue(opSave, rec) }

// Clear queues removal of the record and returns immediately.
func (w *Writer) Clear() { w.enqueue(opClear, Record{}) }

func (w *Writer) enqueue(kind opKind, rec Record) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.seq++
	w.pending = &writeOp{kind: kind, rec: rec, seq: w.seq}
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// SaveSync writes rec and blocks until the backend accepted it.
// Any queued operation issued before this call is discarded.
func (w *Writer) SaveSync(ctx context.Context, rec Record) error {
	return w.runSync(ctx, writeOp{kind: opSave, rec: rec})
}

// ClearSync removes the record and blocks until done.
func (w *Writer) ClearSync(ctx context.Context) error {
	return w.runSync(ctx, writeOp{kind: opClear})
}

func (w *Writer) runSync(ctx context.Context, op writeOp) error {
	w.mu.Lock()
	w.seq++
	op.seq = w.seq
	w.pending = nil
	w.mu.Unlock()
	return w.apply(ctx, op)
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	w.mu.Lock()
	op := w.pending
	w.pending = nil
	w.mu.Unlock()
	if op == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if err := w.apply(ctx, *op); err != nil {
		w.logger.Warn("state write failed", "op", op.kind.String(), "error", err)
	}
}

func (w *Writer) apply(ctx context.Context, op writeOp) error {
	w.execMu.Lock()
	defer w.execMu.Unlock()
	if op.seq <= w.applied {
		return nil
	}
	var err error
	switch op.kind {
	case opSave:
		op.rec.Version = CurrentVersion
		if op.rec.UpdatedAt.IsZero() {
			op.rec.UpdatedAt = time.Now().UTC()
		}
		err = w.st.Save(ctx, op.rec)
	case opClear:
		err = w.st.Clear(ctx)
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
	}
	metrics.RecordStoreWrite(op.kind.String(), err)
	if err != nil {
		return err
	}
	w.applied = op.seq
	return nil
}

// Close flushes the pending operation and stops the writer.
// The underlying Store is not closed.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	close(w.stop)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load reads straight from the backend; it does not see queued writes.
func (w *Writer) Load(ctx context.Context) (Record, error) {
	return w.st.Load(ctx)
}
