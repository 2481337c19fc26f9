package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/sipchat/internal/bridge"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/event"
)

// fakeEngine records every command it receives.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	inbox      event.Publisher
	autoEnd    bool
	connectErr error
	sendErr    error
	recordErr  error
	echo       time.Duration
	traces     map[string]bool
	nextID     int
	local      engine.URI
}

func newFakeEngine(local engine.URI) *fakeEngine {
	return &fakeEngine{
		echo:   200 * time.Millisecond,
		traces: make(map[string]bool),
		local:  local,
	}
}

func (f *fakeEngine) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Start(context.Context, engine.Account) error { return nil }

func (f *fakeEngine) Unregister() error {
	f.record("unregister")
	if f.inbox != nil {
		f.inbox.Publish(event.NewRegistration(event.KindRegistrationDidEnd, f.local.String(), event.Registration{}))
	}
	return nil
}

func (f *fakeEngine) Stop() error {
	f.record("stop")
	return nil
}

func (f *fakeEngine) Connect(remote engine.URI, streams []engine.StreamKind) (engine.SessionInfo, error) {
	f.record("connect %s %s", remote, engine.StreamLabels(streams))
	if f.connectErr != nil {
		return engine.SessionInfo{}, f.connectErr
	}
	f.mu.Lock()
	f.nextID++
	id := engine.SessionID(fmt.Sprintf("out-%d", f.nextID))
	f.mu.Unlock()
	return engine.SessionInfo{
		ID:       id,
		Local:    f.local,
		Remote:   remote,
		State:    engine.StateConnecting,
		Streams:  streams,
		Outgoing: true,
	}, nil
}

func (f *fakeEngine) Accept(id engine.SessionID, streams []engine.StreamKind) error {
	f.record("accept %s %s", id, engine.StreamLabels(streams))
	return nil
}

func (f *fakeEngine) Reject(id engine.SessionID, code int) error {
	f.record("reject %s %d", id, code)
	return nil
}

func (f *fakeEngine) AcceptProposal(id engine.SessionID) error {
	f.record("accept_proposal %s", id)
	return nil
}

func (f *fakeEngine) RejectProposal(id engine.SessionID) error {
	f.record("reject_proposal %s", id)
	return nil
}

func (f *fakeEngine) AddStream(id engine.SessionID, kind engine.StreamKind) error {
	f.record("add %s %s", id, kind)
	return nil
}

func (f *fakeEngine) RemoveStream(id engine.SessionID, kind engine.StreamKind) error {
	f.record("remove %s %s", id, kind)
	return nil
}

func (f *fakeEngine) Hold(id engine.SessionID) error {
	f.record("hold %s", id)
	return nil
}

func (f *fakeEngine) Unhold(id engine.SessionID) error {
	f.record("unhold %s", id)
	return nil
}

func (f *fakeEngine) SendDTMF(id engine.SessionID, digit rune) error {
	f.record("dtmf %s %c", id, digit)
	return nil
}

func (f *fakeEngine) SendMessage(id engine.SessionID, text string) error {
	f.record("message %s %s", id, text)
	return f.sendErr
}

func (f *fakeEngine) End(id engine.SessionID) error {
	f.record("end %s", id)
	if f.autoEnd && f.inbox != nil {
		info := engine.SessionInfo{ID: id, State: engine.StateEnded}
		f.inbox.Publish(event.NewChangedState(info, engine.StateConfirmed))
		f.inbox.Publish(event.NewDidEnd(info, engine.OriginatorLocal))
	}
	return nil
}

func (f *fakeEngine) StartRecording(id engine.SessionID) error {
	f.record("start_recording %s", id)
	return f.recordErr
}

func (f *fakeEngine) StopRecording(id engine.SessionID) error {
	f.record("stop_recording %s", id)
	return f.recordErr
}

func (f *fakeEngine) ToggleTrace(category string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces[category] = !f.traces[category]
	return f.traces[category], nil
}

func (f *fakeEngine) EchoTailLength() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.echo
}

func (f *fakeEngine) SetEchoTailLength(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.echo = d
	return nil
}

// fakeConsole answers questions from a channel and records output.
type fakeConsole struct {
	mu        sync.Mutex
	prompt    string
	lines     []string
	questions []string
	keyMode   bool
	withdrawn int

	shown   chan string
	answers chan rune
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		shown:   make(chan string, 16),
		answers: make(chan rune, 1),
	}
}

func (f *fakeConsole) Ask(ctx context.Context, text string, answers []rune) (rune, error) {
	f.mu.Lock()
	f.questions = append(f.questions, text)
	f.mu.Unlock()
	f.shown <- text

	select {
	case r := <-f.answers:
		return r, nil
	case <-ctx.Done():
		f.mu.Lock()
		f.withdrawn++
		f.mu.Unlock()
		return 0, ctx.Err()
	}
}

func (f *fakeConsole) SetPrompt(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = p
}

func (f *fakeConsole) Println(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeConsole) SetKeyMode(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyMode = on
}

func (f *fakeConsole) Prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt
}

func (f *fakeConsole) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.lines, "\n")
}

func (f *fakeConsole) LastLine() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		return ""
	}
	return f.lines[len(f.lines)-1]
}

func (f *fakeConsole) Withdrawn() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withdrawn
}

func (f *fakeConsole) KeyMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyMode
}

// harness drives a Coordinator one event at a time on the test goroutine.
type harness struct {
	t     *testing.T
	c     *Coordinator
	eng   *fakeEngine
	con   *fakeConsole
	inbox *bridge.Bridge[event.Event]
}

var alice = engine.Account{
	ID:  "alice@example.com",
	URI: engine.URI{User: "alice", Host: "example.com"},
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	inbox := bridge.New(event.Closed())
	eng := newFakeEngine(alice.URI)
	eng.inbox = inbox
	con := newFakeConsole()

	opts = append([]Option{WithClock(func() time.Time {
		return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	})}, opts...)
	c := New(eng, con, inbox, alice, opts...)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	t.Cleanup(func() {
		c.cancel()
		c.pending.Wait()
		inbox.Close()
	})
	c.updatePrompt()
	return &harness{t: t, c: c, eng: eng, con: con, inbox: inbox}
}

// step handles exactly one queued event.
func (h *harness) step() event.Event {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, ok := h.inbox.Next(ctx)
	if !ok {
		h.t.Fatal("no event arrived")
	}
	h.c.handle(ev)
	return ev
}

// send publishes ev and handles it.
func (h *harness) send(ev event.Event) {
	h.t.Helper()
	h.inbox.Publish(ev)
	h.step()
}

func (h *harness) line(s string) {
	h.t.Helper()
	h.send(event.NewInputLine(s))
}

func (h *harness) waitQuestion() string {
	h.t.Helper()
	select {
	case q := <-h.con.shown:
		return q
	case <-time.After(2 * time.Second):
		h.t.Fatal("question was never shown")
		return ""
	}
}

// answer replies to the shown question and handles the resulting decision.
func (h *harness) answer(r rune) {
	h.t.Helper()
	h.con.answers <- r
	if ev := h.step(); ev.Kind != event.KindDecision {
		h.t.Fatalf("expected decision event, got %s", ev.Kind)
	}
}

func (h *harness) wantCalls(want ...string) {
	h.t.Helper()
	got := h.eng.Calls()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		h.t.Fatalf("engine calls = %q, want %q", got, want)
	}
}

func session(id string, state engine.State, streams ...engine.StreamKind) engine.SessionInfo {
	return engine.SessionInfo{
		ID:      engine.SessionID(id),
		Local:   alice.URI,
		Remote:  engine.URI{User: "bob", Host: "example.org"},
		State:   state,
		Streams: streams,
	}
}

// accept runs the incoming flow for id and answers y.
func (h *harness) accept(id string, streams ...engine.StreamKind) {
	h.t.Helper()
	h.send(event.NewIncoming(session(id, engine.StateIncoming, streams...)))
	h.waitQuestion()
	h.answer('y')
}
