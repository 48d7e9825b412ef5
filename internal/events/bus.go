package events

import (
	"context"
	"sync"
)

// Bus fans events out to in-process subscribers. Each subscriber owns a FIFO
// queue drained by a dedicated goroutine, so a slow consumer delays only
// itself and delivery order per subscriber matches publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	fn   func(Event)
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers fn for every subsequent event. The returned cancel
// function detaches the subscriber and drains its queue.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{
		ch:   make(chan Event, 64),
		done: make(chan struct{}),
		fn:   fn,
	}
	b.subs[id] = sub

	go func() {
		defer close(sub.done)
		for ev := range sub.ch {
			sub.fn(ev)
		}
	}()

	return func() {
		b.mu.Lock()
		s, ok := b.subs[id]
		if ok {
			delete(b.subs, id)
		}
		b.mu.Unlock()
		if ok {
			close(s.ch)
			<-s.done
		}
	}
}

// Publish enqueues the event for every subscriber. A subscriber whose queue
// is full blocks the publisher rather than dropping events.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.ch <- ev
	}
	return nil
}

// Close detaches all subscribers and waits for their queues to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.ch)
		<-s.done
	}
}
