// Package notify fans task label notifications out to subscribers.
//
// The task configuration watcher accepts exactly one client. A Broadcaster
// fills that slot and relays each notification to any number of
// subscribers (console printers, hooks).
package notify

import (
	"sync"

	"github.com/dshills/taskwatch/internal/taskconfig"
)

// Listener is called with the current ordered task labels.
type Listener func(labels []string)

// Subscription represents an active listener subscription.
type Subscription struct {
	id          uint64
	broadcaster *Broadcaster
}

// Unsubscribe removes this subscription.
func (s *Subscription) Unsubscribe() {
	if s.broadcaster != nil {
		s.broadcaster.unsubscribe(s.id)
	}
}

// Broadcaster relays label notifications to subscribers.
type Broadcaster struct {
	mu sync.RWMutex

	listeners map[uint64]Listener
	nextID    uint64

	// Whether to deliver synchronously or through a buffer
	async  bool
	buffer chan []string

	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithAsync enables asynchronous delivery through a buffered channel.
func WithAsync(bufferSize int) Option {
	return func(b *Broadcaster) {
		if bufferSize > 0 {
			b.async = true
			b.buffer = make(chan []string, bufferSize)
		}
	}
}

// New creates a new Broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		listeners: make(map[uint64]Listener),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.async {
		b.wg.Add(1)
		go b.processAsync()
	}

	return b
}

// Ensure Broadcaster satisfies the watcher's client contract.
var _ taskconfig.Client = (*Broadcaster)(nil)

// Subscribe registers a listener for label notifications.
func (b *Broadcaster) Subscribe(listener Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = listener

	return &Subscription{id: id, broadcaster: b}
}

// OnTaskLabelsChanged implements taskconfig.Client, relaying the label
// list to all subscribers.
func (b *Broadcaster) OnTaskLabelsChanged(labels []string) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	snapshot := make([]string, len(labels))
	copy(snapshot, labels)

	if b.async {
		select {
		case b.buffer <- snapshot:
		case <-b.done:
		}
		return
	}

	b.deliver(snapshot)
}

// Close shuts down the broadcaster. It is safe to call Close multiple times.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
}

// unsubscribe removes a listener by ID.
func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// deliver sends labels to all listeners outside the lock.
func (b *Broadcaster) deliver(labels []string) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, listener := range listeners {
		listener(labels)
	}
}

// processAsync handles asynchronous delivery.
func (b *Broadcaster) processAsync() {
	defer b.wg.Done()

	for {
		select {
		case labels := <-b.buffer:
			b.deliver(labels)
		case <-b.done:
			// Drain remaining buffered notifications
			for {
				select {
				case labels := <-b.buffer:
					b.deliver(labels)
				default:
					return
				}
			}
		}
	}
}
