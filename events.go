package nodestreams

import (
	"sync"
)

// Listener is a callback registered with [EventEmitter.On] or
// [EventEmitter.Once]. Lifecycle signals pass the event payload (if any) in
// args: "error" passes the error, the remaining signals pass nothing.
type Listener func(args ...any)

// ListenerID uniquely identifies a registered listener for removal
// purposes. Go functions cannot be reliably compared for equality, so each
// registration yields a unique ID.
type ListenerID uint64

type emitterEntry struct {
	listener Listener
	id       ListenerID
	once     bool
}

// EventEmitter provides ordered publish-subscribe signal delivery for the
// stream lifecycle signals (drain, prefinish, finish, close, error).
//
// Listener registration and removal are safe for concurrent use; dispatch is
// synchronous and happens on the goroutine driving the stream.
type EventEmitter struct {
	listeners map[string][]emitterEntry
	nextID    ListenerID
	mu        sync.Mutex
}

// NewEventEmitter creates an empty emitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		listeners: make(map[string][]emitterEntry),
		nextID:    1,
	}
}

// On registers a listener for the named event, returning an ID usable with
// [EventEmitter.RemoveListenerByID].
func (e *EventEmitter) On(event string, fn Listener) ListenerID {
	return e.add(event, fn, false)
}

// Once registers a listener removed automatically after its first dispatch.
func (e *EventEmitter) Once(event string, fn Listener) ListenerID {
	return e.add(event, fn, true)
}

func (e *EventEmitter) add(event string, fn Listener, once bool) ListenerID {
	if fn == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[event] = append(e.listeners[event], emitterEntry{listener: fn, id: id, once: once})
	return id
}

// RemoveListenerByID removes a listener previously registered for event.
// Returns true if a listener was removed.
func (e *EventEmitter) RemoveListenerByID(event string, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners removes every listener for event, or every listener for
// every event when event is empty.
func (e *EventEmitter) RemoveAllListeners(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if event == "" {
		e.listeners = make(map[string][]emitterEntry)
	} else {
		delete(e.listeners, event)
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *EventEmitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit dispatches the named event to all listeners in registration order,
// returning true if at least one listener received it.
func (e *EventEmitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	entries := make([]emitterEntry, len(e.listeners[event]))
	copy(entries, e.listeners[event])
	e.mu.Unlock()

	var removed []ListenerID
	for _, entry := range entries {
		entry.listener(args...)
		if entry.once {
			removed = append(removed, entry.id)
		}
	}
	for _, id := range removed {
		e.RemoveListenerByID(event, id)
	}
	return len(entries) > 0
}
