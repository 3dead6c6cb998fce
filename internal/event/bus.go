package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/piper/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Filter selects the events a subscription receives.
type Filter func(Event) bool

// OfType matches events whose EventType is one of types.
func OfType(types ...string) Filter {
	return func(e Event) bool {
		return slices.Contains(types, e.EventType())
	}
}

// OfPipeline matches events published by the pipeline run with the given ID.
func OfPipeline(id string) Filter {
	return func(e Event) bool {
		return e.Pipeline() == id
	}
}

// subscription is a registered handler and the filter guarding it.
type subscription struct {
	id      string
	filter  Filter // nil matches every event
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
// It lets the pipeline engine report lifecycle transitions without knowing
// who consumes them. Several pipelines may publish on the same Bus; handlers
// tell them apart with [OfPipeline]. A nil *Bus discards every published
// event.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription // registration order
	logger *logging.Logger
}

// NewBus creates a new event bus. Handler panics are reported through logger;
// a nil logger discards them.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a handler for one event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	return b.SubscribeFunc(OfType(eventType), handler)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.SubscribeFunc(nil, handler)
}

// SubscribeFunc registers a handler for the events filter accepts. A nil
// filter accepts everything.
func (b *Bus) SubscribeFunc(filter Filter, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subs = append(b.subs, subscription{id: id, filter: filter, handler: handler})
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Publish calls every matching handler, in registration order, on the
// calling goroutine. A panicking handler is logged and recovered; the
// remaining handlers still run.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter == nil || sub.filter(event) {
			b.safeCall(sub.handler, event)
		}
	}
}

func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.EventType(),
				"pipeline", event.Pipeline(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
