package events

import "sync"

// Emitter is an instance-scoped publish/subscribe channel for values of
// type T. Subscribers are invoked synchronously on the publishing
// goroutine, in no particular order.
type Emitter[T any] struct {
	lock      sync.Mutex
	nextID    int
	listeners map[int]func(T)
}

func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{
		listeners: make(map[int]func(T)),
	}
}

// Subscribe registers a listener and returns a function that removes it.
// Unsubscribing twice is a no-op.
func (e *Emitter[T]) Subscribe(listener func(T)) func() {
	e.lock.Lock()
	defer e.lock.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = listener
	return func() {
		e.lock.Lock()
		defer e.lock.Unlock()
		delete(e.listeners, id)
	}
}

// Publish delivers value to every current subscriber.
func (e *Emitter[T]) Publish(value T) {
	e.lock.Lock()
	listeners := make([]func(T), 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.lock.Unlock()

	for _, l := range listeners {
		l(value)
	}
}

// Len returns the number of active subscribers.
func (e *Emitter[T]) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.listeners)
}
