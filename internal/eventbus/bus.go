// Package eventbus is an in-process broadcast with replay-latest semantics:
// a new subscriber first receives the most recent value, then every later
// one. Publishing never blocks; a subscriber that falls behind loses its
// oldest buffered value.
package eventbus

import (
	"io"
	"log/slog"
	"sync"
)

const DefaultBuffer = 16

type Bus[T any] struct {
	name   string
	logger *slog.Logger

	mu        sync.Mutex
	subs      map[uint64]chan T
	next      uint64
	latest    T
	hasLatest bool
	closed    bool
	dropped   uint64
}

// New returns an empty bus. name only appears in log lines.
func New[T any](name string, logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus[T]{
		name:   name,
		logger: logger,
		subs:   map[uint64]chan T{},
	}
}

// Subscribe registers a listener with the given buffer (DefaultBuffer when
// buffer <= 0). The channel is closed by the returned cancel func or by Close.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	if b.hasLatest {
		ch <- b.latest
	}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish records v as the latest value and fans it out.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = v
	b.hasLatest = true

	for id, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Full: drop the oldest value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
		b.dropped++
		b.logger.Debug("event bus subscriber lagging", "bus", b.name, "subscriber", id)
	}
}

// Latest returns the most recently published value.
func (b *Bus[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLatest
}

// Dropped counts values discarded because a subscriber was full.
func (b *Bus[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus[T]) Close() {
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
