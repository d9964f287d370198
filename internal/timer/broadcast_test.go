package timer

import (
	"testing"
	"time"
)

func TestBroadcasterReplaysLatest(t *testing.T) {
	b := NewBroadcaster(1)
	b.Publish(2)
	ch, cancel := b.Subscribe()
	defer cancel()
	if v := <-ch; v != 2 {
		t.Fatalf("expected replay of 2, got %d", v)
	}
}

func TestBroadcasterNeverBlocksAndKeepsNewest(t *testing.T) {
	b := NewBroadcaster(0)
	ch, cancel := b.Subscribe()
	defer cancel()
	done := make(chan struct{})
	go func() {
		for i := 1; i <= 1000; i++ {
			b.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on an idle subscriber")
	}
	if v := <-ch; v != 1000 {
		t.Fatalf("slow reader should see the newest value, got %d", v)
	}
	if b.Latest() != 1000 {
		t.Fatalf("Latest = %d", b.Latest())
	}
}

func TestBroadcasterUnsubscribeAndClose(t *testing.T) {
	b := NewBroadcaster("a")
	ch1, cancel1 := b.Subscribe()
	ch2, _ := b.Subscribe()
	<-ch1
	<-ch2
	cancel1()
	cancel1()
	if _, ok := <-ch1; ok {
		t.Fatal("ch1 should be closed after unsubscribe")
	}
	b.Close()
	if _, ok := <-ch2; ok {
		t.Fatal("ch2 should be closed after Close")
	}
	b.Publish("late")
	ch3, _ := b.Subscribe()
	if _, ok := <-ch3; ok {
		t.Fatal("subscribing to a closed broadcaster yields a closed channel")
	}
}
