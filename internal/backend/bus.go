package backend

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"snapqr/internal/protocol"
)

// EventHandler receives one backend event.
type EventHandler func(ev protocol.Event)

// Bus fans backend events out to named subscriptions.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]EventHandler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]EventHandler)}
}

// Subscribe registers handler for events named name and returns a function
// that removes it.
func (b *Bus) Subscribe(name string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]EventHandler)
	}
	b.handlers[name][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[name], id)
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
		})
	}
}

// Publish calls every handler subscribed to ev.Name and returns how many
// ran. A panicking handler is logged and does not stop the others.
func (b *Bus) Publish(ev protocol.Event) int {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers[ev.Name]))
	for _, h := range b.handlers[ev.Name] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		slog.Debug("[DEBUG-BACKEND] event without subscribers", "event", ev.Name)
		return 0
	}
	for _, h := range handlers {
		callHandler(ev, h)
	}
	return len(handlers)
}

func callHandler(ev protocol.Event, h EventHandler) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] event handler recovered",
				"event", ev.Name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(ev)
}
