package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRecordValidate(t *testing.T) {
	ok := Record{Version: CurrentVersion, RemainingSeconds: 400, InitialDurationMinutes: 10, Paused: true}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	bad := []Record{
		{Version: 0, RemainingSeconds: 1},
		{Version: CurrentVersion + 1},
		{Version: CurrentVersion, RemainingSeconds: -1},
		{Version: CurrentVersion, InitialDurationMinutes: -3},
		{Version: CurrentVersion, Running: true, Paused: true},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("case %d: expected ErrInvalidRecord, got %v", i, err)
		}
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rec := Record{Version: CurrentVersion, RemainingSeconds: 12, InitialDurationMinutes: 1, Running: true}
	if err := m.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := m.Load(ctx)
	if err != nil || got != rec {
		t.Fatalf("load: %+v %v", got, err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

// gateStore blocks the first Save until released so tests can pile up writes.
type gateStore struct {
	*Memory
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
	fail    bool
}

func (g *gateStore) Save(ctx context.Context, rec Record) error {
	g.once.Do(func() {
		g.entered <- struct{}{}
		<-g.gate
	})
	if g.fail {
		return errors.New("disk on fire")
	}
	return g.Memory.Save(ctx, rec)
}

func newGateStore() *gateStore {
	return &gateStore{Memory: NewMemory(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
}

func TestWriterLatestWins(t *testing.T) {
	g := newGateStore()
	w := NewWriter(g, nil)

	w.Save(Record{RemainingSeconds: 100})
	<-g.entered
	for i := int64(99); i >= 90; i-- {
		w.Save(Record{RemainingSeconds: i})
	}
	close(g.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := g.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RemainingSeconds != 90 {
		t.Fatalf("expected latest write 90, got %d", got.RemainingSeconds)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("writer must stamp version, got %d", got.Version)
	}
	if n := g.Saves(); n != 2 {
		t.Fatalf("expected superseded writes to be skipped, got %d saves", n)
	}
}

func TestWriterSaveSyncSupersedesQueued(t *testing.T) {
	g := newGateStore()
	w := NewWriter(g, nil)
	defer func() { _ = w.Close(context.Background()) }()

	w.Save(Record{RemainingSeconds: 50})
	<-g.entered
	w.Save(Record{RemainingSeconds: 49})

	done := make(chan error, 1)
	go func() { done <- w.SaveSync(context.Background(), Record{RemainingSeconds: 7, Paused: true}) }()
	close(g.gate)
	if err := <-done; err != nil {
		t.Fatalf("SaveSync: %v", err)
	}
	got, err := g.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.RemainingSeconds != 7 || !got.Paused {
		t.Fatalf("sync write was overwritten by a stale one: %+v", got)
	}
}

func TestWriterClearOrdering(t *testing.T) {
	m := NewMemory()
	w := NewWriter(m, nil)
	w.Save(Record{RemainingSeconds: 3})
	w.Clear()
	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cleared record, got %v", err)
	}
	// writes after close are dropped
	w.Save(Record{RemainingSeconds: 1})
	if _, err := m.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("write after close must be ignored, got %v", err)
	}
}

func TestWriterSyncError(t *testing.T) {
	g := &gateStore{Memory: NewMemory(), fail: true}
	g.once.Do(func() {})
	w := NewWriter(g, nil)
	defer func() { _ = w.Close(context.Background()) }()
	if err := w.SaveSync(context.Background(), Record{RemainingSeconds: 1}); err == nil {
		t.Fatalf("expected backend error to surface from SaveSync")
	}
}
