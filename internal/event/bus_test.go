package event

import (
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/sipchat/internal/engine"
)

func info(id string) engine.SessionInfo {
	return engine.SessionInfo{ID: engine.SessionID(id), State: engine.StateIncoming}
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(KindSessionDidStart, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(KindSessionNewIncoming, func(e Event) {
		received = e
	})

	bus.Publish(NewIncoming(info("s1")))

	if received.Kind != KindSessionNewIncoming {
		t.Fatalf("Expected handler to receive new incoming, got %v", received.Kind)
	}
	if received.SessionID() != "s1" {
		t.Errorf("SessionID() = %q, want s1", received.SessionID())
	}
	if received.EventType() != "session.new_incoming" {
		t.Errorf("EventType() = %q", received.EventType())
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(KindSessionDidEnd, func(e Event) {
		t.Error("Handler should not be called for non-matching kind")
	})

	bus.Publish(NewDidStart(info("s1")))
}

func TestBus_SubscribeAllRunsAfterSpecific(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe(KindInputLine, func(e Event) { order = append(order, "specific") })

	bus.Publish(NewInputLine("hello"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "all" {
		t.Errorf("handler order = %v, want [specific all]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	id := bus.Subscribe(KindInputEOF, func(e Event) { calls++ })
	allID := bus.SubscribeAll(func(e Event) { calls++ })

	if !bus.Unsubscribe(id) || !bus.Unsubscribe(allID) {
		t.Fatal("Unsubscribe should find both subscriptions")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should return false")
	}

	bus.Publish(NewInputEOF())
	if calls != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", calls)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus()

	reached := false
	bus.Subscribe(KindInputLine, func(e Event) { panic("boom") })
	bus.Subscribe(KindInputLine, func(e Event) { reached = true })

	bus.Publish(NewInputLine("x"))

	if !reached {
		t.Error("handler after the panicking one should still run")
	}
}

func TestBus_Watch(t *testing.T) {
	bus := NewBus()

	fired := 0
	cancel := bus.Watch("s1", KindSessionChangedState, func(Event) { fired++ })

	other := info("s2")
	bus.Publish(NewChangedState(other, engine.StateIncoming))
	bus.Publish(NewDidStart(info("s1")))
	if fired != 0 {
		t.Fatalf("watch fired for unrelated events: %d", fired)
	}

	mine := info("s1")
	mine.State = engine.StateEnded
	bus.Publish(NewChangedState(mine, engine.StateIncoming))
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	cancel()
	cancel()
	bus.Publish(NewChangedState(mine, engine.StateIncoming))
	if fired != 1 {
		t.Errorf("watch fired after cancel: %d", fired)
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_Concurrent(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewInputKey('x'))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := bus.Watch("s", KindSessionChangedState, func(Event) {})
			cancel()
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("count = %d, want 1000", count)
	}
}

func TestEvent_Accessors(t *testing.T) {
	if got := NewInputLine("hi").Line(); got != "hi" {
		t.Errorf("Line() = %q", got)
	}
	if got := NewInputKey('5').Key(); got != '5' {
		t.Errorf("Key() = %q", got)
	}
	ran := false
	NewDecision(func() { ran = true }).Continuation()()
	if !ran {
		t.Error("Continuation() did not return the closure")
	}
	if NewInputLine("x").Continuation() != nil {
		t.Error("Continuation() on a line event should be nil")
	}
	if time.Since(NewInputEOF().Timestamp()) > time.Minute {
		t.Error("Timestamp() should be set")
	}
}

func TestEvent_Sender(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"session", NewDidStart(info("s9")), "s9"},
		{"chat", NewChatMessage(info("s9"), engine.URI{}, "hi", time.Now()), "s9"},
		{"registration", NewRegistration(KindRegistrationDidSucceed, "alice@example.com", Registration{}), "alice@example.com"},
		{"input", NewInputEOF(), "console"},
		{"decision", NewDecision(func() {}), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Sender(); got != tt.want {
				t.Errorf("Sender() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindSessionDidEnd.String() != "session.did_end" {
		t.Errorf("String() = %q", KindSessionDidEnd.String())
	}
	if Kind(999).String() != "unknown" {
		t.Errorf("unknown kind String() = %q", Kind(999).String())
	}
	if !KindChatGotMessage.IsSession() || KindInputLine.IsSession() {
		t.Error("IsSession misclassifies kinds")
	}
	if !KindRegistrationDidEnd.IsRegistration() || KindSessionDidEnd.IsRegistration() {
		t.Error("IsRegistration misclassifies kinds")
	}
}
