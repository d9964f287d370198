package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func TestDispatcherFansOut(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("down")}
	d := NewDispatcher(nil, a, b)
	d.Record(Event{Type: EventStarted, OccurredAt: time.Now().UTC(), RunID: "r1", RemainingSeconds: 600, InitialDurationMinutes: 10})
	d.Record(Event{Type: EventCancelled, RunID: "r1"})
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*memSink{a, b} {
		if len(s.events) != 2 || s.events[0].Type != EventStarted || s.events[1].Type != EventCancelled {
			t.Fatalf("unexpected events: %+v", s.events)
		}
		if !s.closed {
			t.Fatalf("sink not closed")
		}
	}
	// after close Record is a no-op
	d.Record(Event{Type: EventPaused})
}

type blockSink struct{ release chan struct{} }

func (b blockSink) Send(context.Context, Event) error {
	<-b.release
	return nil
}

func TestDispatcherNeverBlocks(t *testing.T) {
	bs := blockSink{release: make(chan struct{})}
	d := NewDispatcher(nil, bs)
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize*3; i++ {
			d.Record(Event{Type: EventStarted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Record blocked on a stuck sink")
	}
	close(bs.release)
	_ = d.Close(context.Background())
}
