package notify

import (
	"errors"
	"sync"
)

// ErrStopped is returned by a Scheduler after Stop.
var ErrStopped = errors.New("notify: scheduler stopped")

// Bus is a process-wide broadcaster of zero-payload events. Each
// subscriber channel holds at most one undelivered signal, so a slow
// subscriber sees bursts coalesced instead of blocking publishers.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[chan struct{}]struct{}
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a channel signalled on every Publish to topic, and a
// function that unsubscribes and closes it.
func (b *Bus) Subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan struct{}]struct{})
	}
	b.subs[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[topic][ch]; ok {
				delete(b.subs[topic], ch)
				close(ch)
			}
		})
	}
}

// Publish signals every subscriber of topic without blocking.
func (b *Bus) Publish(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of subscribers of topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, topic)
	}
	b.closed = true
}
