// Package event defines the notifications that flow into the coordinator and
// a synchronous bus used to observe them once they have been processed.
//
// Every foreign input (engine notifications, console lines and keys, and
// negotiation outcomes) is an [Event] tagged with a [Kind]. Producers hand
// events to the bridge; the coordinator consumes them one at a time and then
// republishes each on a [Bus] so that watchers, such as a pending negotiation
// waiting for its session to change state, see them in processing order.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	cancel := bus.Watch(sessionID, event.KindSessionChangedState, func(event.Event) {
//	    select {
//	    case changed <- struct{}{}:
//	    default:
//	    }
//	})
//	defer cancel()
//
// # Thread Safety
//
// Subscribe, Unsubscribe and Publish may be called from any goroutine.
// Handlers run synchronously on the publishing goroutine and must not block.
package event
