package timer

import "sync"

// Broadcaster keeps the latest value and hands it to every subscriber.
// Publish never blocks: each subscriber holds at most one pending value and
// a slow reader only ever sees the newest one.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	latest T
	subs   map[int]chan T
	next   int
	closed bool
}

func NewBroadcaster[T any](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{latest: initial, subs: make(map[int]chan T)}
}

func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = v
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (b *Broadcaster[T]) Latest() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Subscribe returns a channel primed with the latest value. The returned
// func unsubscribes and closes the channel; it is safe to call twice.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- b.latest
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Close ends every subscription. Later publishes are dropped.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
