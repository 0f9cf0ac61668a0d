package activity

import (
	"fmt"
	"strings"
	"sync"
)

// EventKind is a user interaction that counts as activity.
type EventKind string

const (
	EventClick       EventKind = "click"
	EventKeyPress    EventKind = "keypress"
	EventScroll      EventKind = "scroll"
	EventPointerMove EventKind = "pointermove"
)

// TrackedEvents lists the interactions a mounted tracker listens for.
func TrackedEvents() []EventKind {
	return []EventKind{EventClick, EventKeyPress, EventScroll, EventPointerMove}
}

// ParseEventKind validates a client-reported event name.
func ParseEventKind(raw string) (EventKind, error) {
	kind := EventKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range TrackedEvents() {
		if k == kind {
			return k, nil
		}
	}
	return "", fmt.Errorf("activity: unknown event %q", raw)
}

// EventSource delivers interaction events to subscribers.
type EventSource interface {
	Subscribe(kind EventKind, fn func()) (cancel func())
}

// Bus is an in-process EventSource.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[EventKind]map[uint64]func()
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[EventKind]map[uint64]func())}
}

// Subscribe registers fn for kind and returns a function that removes it.
func (b *Bus) Subscribe(kind EventKind, fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = make(map[EventKind]map[uint64]func())
	}
	id := b.nextID
	b.nextID++
	if b.listeners[kind] == nil {
		b.listeners[kind] = make(map[uint64]func())
	}
	b.listeners[kind][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners[kind], id)
			if len(b.listeners[kind]) == 0 {
				delete(b.listeners, kind)
			}
		})
	}
}

// Publish invokes every listener registered for kind.
func (b *Bus) Publish(kind EventKind) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners[kind]))
	for _, fn := range b.listeners[kind] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of registered listeners across all kinds.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.listeners {
		n += len(set)
	}
	return n
}
