package event

import (
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/sipchat/internal/engine"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription represents a registered event handler.
type subscription struct {
	id      string
	kind    Kind
	all     bool
	handler Handler
}

// Bus is a synchronous pub-sub event bus. The coordinator republishes every
// event it has processed here, so handlers run on the coordinator goroutine
// and observe events in processing order.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[Kind][]subscription
	wildcard      []subscription
	nextID        atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[Kind][]subscription),
	}
}

// Subscribe registers a handler for one event kind.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: b.generateID(), kind: kind, handler: handler}
	b.subscriptions[kind] = append(b.subscriptions[kind], sub)
	return sub.id
}

// SubscribeAll registers a handler for all event kinds.
func (b *Bus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := subscription{id: b.generateID(), all: true, handler: handler}
	b.wildcard = append(b.wildcard, sub)
	return sub.id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.wildcard {
		if sub.id == id {
			b.wildcard = append(b.wildcard[:i:i], b.wildcard[i+1:]...)
			return true
		}
	}
	for kind, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Watch calls fire for every event of kind emitted by session id until the
// returned cancel func is called. Cancel is idempotent.
func (b *Bus) Watch(id engine.SessionID, kind Kind, fire func(Event)) (cancel func()) {
	subID := b.Subscribe(kind, func(e Event) {
		if e.Session.ID == id {
			fire(e)
		}
	})
	var once sync.Once
	return func() {
		once.Do(func() { b.Unsubscribe(subID) })
	}
}

// Publish dispatches an event to all registered handlers.
// Kind-specific handlers are called first, followed by wildcard handlers.
// Within each group, handlers are called in registration order.
// If a handler panics, the panic is logged, recovered, and publishing
// continues to remaining handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	specific := make([]subscription, len(b.subscriptions[event.Kind]))
	copy(specific, b.subscriptions[event.Kind])
	wildcard := make([]subscription, len(b.wildcard))
	copy(wildcard, b.wildcard)
	b.mu.RUnlock()

	for _, sub := range specific {
		b.safeCall(sub.handler, event)
	}
	for _, sub := range wildcard {
		b.safeCall(sub.handler, event)
	}
}

// safeCall invokes a handler and recovers from any panics.
func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

func (b *Bus) generateID() string {
	return "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[Kind][]subscription)
	b.wildcard = nil
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.wildcard)
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
