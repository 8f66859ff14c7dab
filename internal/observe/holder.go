// Package observe holds a current value and fans out changes to subscribers.
package observe

import "sync"

// Holder stores a snapshot and notifies subscribers when it changes.
// Subscribers always see the latest value; intermediate values may be skipped
// when a subscriber falls behind.
type Holder[T any] struct {
	mu     sync.Mutex
	value  T
	nextID int
	subs   map[int]chan T
}

// NewHolder creates a holder with an initial value.
func NewHolder[T any](initial T) *Holder[T] {
	return &Holder[T]{value: initial, subs: map[int]chan T{}}
}

// Get returns the current snapshot.
func (h *Holder[T]) Get() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Set replaces the snapshot and notifies subscribers.
func (h *Holder[T]) Set(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.value = value
	for _, ch := range h.subs {
		offerLatest(ch, value)
	}
}

// Subscribe returns a channel that first receives the current value and then
// every later one. The returned func unsubscribes and closes the channel.
func (h *Holder[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = map[int]chan T{}
	}
	id := h.nextID
	h.nextID++
	ch := make(chan T, 1)
	ch <- h.value
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func offerLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	// drop the stale pending value
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
