// Package bridge moves values produced on arbitrary goroutines into a single
// consumer goroutine.
//
// Engine callbacks, the console reader, and finished negotiation races all
// publish onto one [Bridge]. The coordinator is its only consumer, so every
// piece of coordination state is touched from exactly one goroutine.
//
// Publish never blocks and never fails: the queue is unbounded, and values
// published after Close are dropped. Values from one producer are delivered
// in the order that producer published them.
//
// Lifecycle:
//
//	b := bridge.New(event.Closed(), bridge.WithLogger(logger))
//	go engineCallbacks(b) // b.Publish(ev)
//	for {
//	    ev, ok := b.Next(ctx)
//	    if !ok {
//	        break // closed or ctx done; ev is the sentinel
//	    }
//	    handle(ev)
//	}
//	b.Close()
package bridge
