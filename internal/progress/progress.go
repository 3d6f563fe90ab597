// Package progress broadcasts human-readable status messages to any number
// of subscribers.
package progress

import (
	"sync"

	"github.com/maloquacious/goobtool/internal/logger"
)

// Listener receives one status message.
type Listener func(message string)

// Broadcaster fans status messages out to its listeners, synchronously and in
// subscription order. Listeners cannot be removed.
type Broadcaster struct {
	mu        sync.Mutex
	listeners []Listener
	log       logger.Logger
}

// New returns an empty Broadcaster. A listener that panics is logged to log
// and skipped; a nil log uses logger.Default.
func New(log logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Default
	}
	return &Broadcaster{log: log}
}

// Subscribe appends fn to the listener list. The same function may be
// subscribed more than once.
func (b *Broadcaster) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Report delivers message to every listener registered at the time of the call.
func (b *Broadcaster) Report(message string) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for i, fn := range listeners {
		b.deliver(i, fn, message)
	}
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) deliver(i int, fn Listener, message string) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("progress listener %d panicked on %q: %v", i, message, r)
		}
	}()
	fn(message)
}
