// Package events provides a minimal synchronous event emitter used for
// environment change and refresh progress notifications.
package events

import "sync"

// Listener receives emitted values. Listeners must not block materially;
// emission is synchronous and runs on the emitting goroutine.
type Listener[T any] func(T)

// Emitter fans a value out to all registered listeners in registration order.
// Listeners are invoked outside the internal lock, so a listener may
// subscribe or unsubscribe other listeners without deadlocking. A listener
// added during a fire is not invoked for that fire.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners []registration[T]
}

type registration[T any] struct {
	id int
	fn Listener[T]
}

// Subscribe registers a listener and returns a function that removes it.
func (e *Emitter[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners = append(e.listeners, registration[T]{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, reg := range e.listeners {
			if reg.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers v to every listener registered at the time of the call.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	regs := make([]registration[T], len(e.listeners))
	copy(regs, e.listeners)
	e.mu.Unlock()

	for _, reg := range regs {
		reg.fn(v)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
