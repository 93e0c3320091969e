package bus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Namespace prefixes every driver-sourced event so transport drivers and
// application subscribers never collide on a name.
const Namespace = "tether::"

// Handler consumes one published event payload.
type Handler func(payload any)

// ParseFunc optionally transforms a raw driver argument before publish.
type ParseFunc func(raw any) any

// EmitFunc is the one-argument adapter handed to transport drivers.
type EmitFunc func(raw any)

// Bus is a mapping-based publish/subscribe registry. Dispatch is
// synchronous and in subscription order; the registry only grows.
type Bus struct {
	mu       sync.RWMutex
	loop     *Loop
	registry map[string][]Handler
}

func New(loop *Loop) *Bus {
	return &Bus{
		loop:     loop,
		registry: make(map[string][]Handler),
	}
}

// Subscribe appends h to the subscriber sequence for event and returns the
// bus for chaining. Identical handlers are not deduplicated.
func (b *Bus) Subscribe(event string, h Handler) *Bus {
	if h == nil {
		return b
	}
	b.mu.Lock()
	b.registry[event] = append(b.registry[event], h)
	b.mu.Unlock()
	return b
}

// Publish invokes every handler registered for event, in subscription
// order, passing payload. Returns false without side effect when no handler
// is registered. Handler panics are not recovered here.
func (b *Bus) Publish(event string, payload any) bool {
	b.mu.RLock()
	handlers := b.registry[event]
	b.mu.RUnlock()
	if len(handlers) == 0 {
		return false
	}
	for _, h := range handlers {
		h(payload)
	}
	return true
}

// Subscribers returns the registered handler count for event.
func (b *Bus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.registry[event])
}

// Emitter returns the adapter a transport driver invokes to report events.
// The adapter optionally transforms its argument via parse, then posts a
// task publishing Namespace+event to the loop. The publish is never
// synchronous with the driver callback; posted publishes run FIFO relative
// to each other.
func (b *Bus) Emitter(event string, parse ParseFunc) EmitFunc {
	name := Namespace + event
	return func(raw any) {
		payload := raw
		if parse != nil {
			payload = parse(raw)
		}
		if err := b.loop.Post(func() {
			b.Publish(name, payload)
		}); err != nil {
			log.Debug().Str("event", name).Err(err).Msg("bus emit dropped")
		}
	}
}
