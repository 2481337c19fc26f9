package event

import (
	"time"

	"github.com/Iron-Ham/sipchat/internal/engine"
)

// Kind identifies the variant of an Event.
type Kind int

// Event kinds. Session and account kinds come from the engine, input kinds
// from the console, and KindDecision from finished negotiation races.
const (
	KindUnknown Kind = iota

	KindSessionNewIncoming
	KindSessionChangedState
	KindSessionGotStreamProposal
	KindSessionGotStreamUpdate
	KindSessionDidStart
	KindSessionDidEnd
	KindSessionDidFail
	KindSessionRejectedStreamProposal
	KindSessionGotHoldRequest
	KindSessionGotUnholdRequest
	KindSessionGotDTMF
	KindSessionDidStartRecording
	KindSessionDidStopRecording
	KindChatGotMessage

	KindRegistrationDidSucceed
	KindRegistrationDidFail
	KindRegistrationDidEnd

	KindInputLine
	KindInputKey
	KindInputEOF

	KindDecision
	KindClosed
)

var kindNames = map[Kind]string{
	KindUnknown:                       "unknown",
	KindSessionNewIncoming:            "session.new_incoming",
	KindSessionChangedState:           "session.changed_state",
	KindSessionGotStreamProposal:      "session.got_stream_proposal",
	KindSessionGotStreamUpdate:        "session.got_stream_update",
	KindSessionDidStart:               "session.did_start",
	KindSessionDidEnd:                 "session.did_end",
	KindSessionDidFail:                "session.did_fail",
	KindSessionRejectedStreamProposal: "session.rejected_stream_proposal",
	KindSessionGotHoldRequest:         "session.got_hold_request",
	KindSessionGotUnholdRequest:       "session.got_unhold_request",
	KindSessionGotDTMF:                "session.got_dtmf",
	KindSessionDidStartRecording:      "session.did_start_recording",
	KindSessionDidStopRecording:       "session.did_stop_recording",
	KindChatGotMessage:                "chat.got_message",
	KindRegistrationDidSucceed:        "registration.did_succeed",
	KindRegistrationDidFail:           "registration.did_fail",
	KindRegistrationDidEnd:            "registration.did_end",
	KindInputLine:                     "input.line",
	KindInputKey:                      "input.key",
	KindInputEOF:                      "input.eof",
	KindDecision:                      "coordinator.decision",
	KindClosed:                        "bridge.closed",
}

// String returns the dotted name of the kind, e.g. "session.did_end".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsSession reports whether events of this kind are emitted by a session.
func (k Kind) IsSession() bool {
	return k >= KindSessionNewIncoming && k <= KindChatGotMessage
}

// IsRegistration reports whether events of this kind are emitted by an account.
func (k Kind) IsRegistration() bool {
	return k >= KindRegistrationDidSucceed && k <= KindRegistrationDidEnd
}

// Event is one notification flowing through the bridge into the coordinator.
// Session carries the sender's snapshot for session kinds; Account names the
// sender for registration kinds. Payload holds the kind-specific data.
type Event struct {
	Kind    Kind
	Time    time.Time
	Session engine.SessionInfo
	Account string
	Payload any
}

// EventType returns the dotted kind name.
func (e Event) EventType() string { return e.Kind.String() }

// Timestamp returns when the event was created.
func (e Event) Timestamp() time.Time { return e.Time }

// SessionID returns the id of the emitting session, or "" for other kinds.
func (e Event) SessionID() engine.SessionID { return e.Session.ID }

// Sender returns a stable key for the emitter, used to check per-sender
// ordering.
func (e Event) Sender() string {
	switch {
	case e.Kind.IsSession():
		return string(e.Session.ID)
	case e.Kind.IsRegistration():
		return e.Account
	case e.Kind == KindInputLine || e.Kind == KindInputKey || e.Kind == KindInputEOF:
		return "console"
	default:
		return ""
	}
}

// Publisher accepts events from any goroutine.
type Publisher interface {
	Publish(Event)
}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// StateChange is the payload of KindSessionChangedState.
type StateChange struct {
	Previous engine.State
	Current  engine.State
}

// StreamProposal is the payload of KindSessionGotStreamProposal.
type StreamProposal struct {
	Proposer engine.Originator
	Streams  []engine.StreamKind
}

// StreamUpdate is the payload of KindSessionGotStreamUpdate.
type StreamUpdate struct {
	Streams []engine.StreamKind
}

// Termination is the payload of KindSessionDidEnd, KindSessionDidFail and
// KindSessionRejectedStreamProposal.
type Termination struct {
	Originator engine.Originator
	Code       int
	Reason     string
}

// HoldRequest is the payload of the hold and unhold kinds.
type HoldRequest struct {
	Originator engine.Originator
}

// DTMF is the payload of KindSessionGotDTMF.
type DTMF struct {
	Digit rune
}

// Recording is the payload of the recording kinds.
type Recording struct {
	FileName string
}

// ChatMessage is the payload of KindChatGotMessage.
type ChatMessage struct {
	From engine.URI
	Text string
	Sent time.Time
}

// Registration is the payload of the registration kinds.
type Registration struct {
	Contact string
	Expires time.Duration
	Code    int
	Reason  string
	RetryIn time.Duration
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func newSessionEvent(kind Kind, info engine.SessionInfo, payload any) Event {
	return Event{Kind: kind, Time: time.Now(), Session: info, Payload: payload}
}

// NewIncoming reports a new inbound session offering info.Streams.
func NewIncoming(info engine.SessionInfo) Event {
	return newSessionEvent(KindSessionNewIncoming, info, nil)
}

// NewChangedState reports a lifecycle transition. info carries the new state.
func NewChangedState(info engine.SessionInfo, prev engine.State) Event {
	return newSessionEvent(KindSessionChangedState, info, StateChange{Previous: prev, Current: info.State})
}

// NewStreamProposal reports that proposer wants to add streams.
func NewStreamProposal(info engine.SessionInfo, proposer engine.Originator, streams []engine.StreamKind) Event {
	return newSessionEvent(KindSessionGotStreamProposal, info, StreamProposal{Proposer: proposer, Streams: streams})
}

// NewStreamUpdate reports the session's new stream set.
func NewStreamUpdate(info engine.SessionInfo) Event {
	return newSessionEvent(KindSessionGotStreamUpdate, info, StreamUpdate{Streams: info.Streams})
}

// NewDidStart reports that the session was established.
func NewDidStart(info engine.SessionInfo) Event {
	return newSessionEvent(KindSessionDidStart, info, nil)
}

// NewDidEnd reports that an established session ended.
func NewDidEnd(info engine.SessionInfo, originator engine.Originator) Event {
	return newSessionEvent(KindSessionDidEnd, info, Termination{Originator: originator})
}

// NewDidFail reports that a session failed before or during setup.
func NewDidFail(info engine.SessionInfo, originator engine.Originator, code int, reason string) Event {
	return newSessionEvent(KindSessionDidFail, info, Termination{Originator: originator, Code: code, Reason: reason})
}

// NewRejectedProposal reports that a stream proposal was declined.
func NewRejectedProposal(info engine.SessionInfo, originator engine.Originator, code int, reason string) Event {
	return newSessionEvent(KindSessionRejectedStreamProposal, info, Termination{Originator: originator, Code: code, Reason: reason})
}

// NewHold reports a hold request from originator.
func NewHold(info engine.SessionInfo, originator engine.Originator) Event {
	return newSessionEvent(KindSessionGotHoldRequest, info, HoldRequest{Originator: originator})
}

// NewUnhold reports an unhold request from originator.
func NewUnhold(info engine.SessionInfo, originator engine.Originator) Event {
	return newSessionEvent(KindSessionGotUnholdRequest, info, HoldRequest{Originator: originator})
}

// NewDTMF reports a received DTMF digit.
func NewDTMF(info engine.SessionInfo, digit rune) Event {
	return newSessionEvent(KindSessionGotDTMF, info, DTMF{Digit: digit})
}

// NewRecordingStarted reports that audio recording began.
func NewRecordingStarted(info engine.SessionInfo, file string) Event {
	return newSessionEvent(KindSessionDidStartRecording, info, Recording{FileName: file})
}

// NewRecordingStopped reports that audio recording ended.
func NewRecordingStopped(info engine.SessionInfo, file string) Event {
	return newSessionEvent(KindSessionDidStopRecording, info, Recording{FileName: file})
}

// NewChatMessage reports an inbound chat message.
func NewChatMessage(info engine.SessionInfo, from engine.URI, text string, sent time.Time) Event {
	return newSessionEvent(KindChatGotMessage, info, ChatMessage{From: from, Text: text, Sent: sent})
}

// NewRegistration reports a registration outcome for account.
func NewRegistration(kind Kind, account string, reg Registration) Event {
	return Event{Kind: kind, Time: time.Now(), Account: account, Payload: reg}
}

// NewInputLine carries one line typed at the console.
func NewInputLine(line string) Event {
	return Event{Kind: KindInputLine, Time: time.Now(), Payload: line}
}

// NewInputKey carries a shortcut key or a keypress in key mode.
func NewInputKey(key rune) Event {
	return Event{Kind: KindInputKey, Time: time.Now(), Payload: key}
}

// NewInputEOF reports end of input.
func NewInputEOF() Event {
	return Event{Kind: KindInputEOF, Time: time.Now()}
}

// NewDecision carries a continuation to run on the coordinator goroutine.
func NewDecision(fn func()) Event {
	return Event{Kind: KindDecision, Time: time.Now(), Payload: fn}
}

// Closed is the sentinel returned by a closed bridge.
func Closed() Event {
	return Event{Kind: KindClosed}
}

// Line returns the payload of a KindInputLine event.
func (e Event) Line() string {
	s, _ := e.Payload.(string)
	return s
}

// Key returns the payload of a KindInputKey event.
func (e Event) Key() rune {
	r, _ := e.Payload.(rune)
	return r
}

// Continuation returns the payload of a KindDecision event.
func (e Event) Continuation() func() {
	fn, _ := e.Payload.(func())
	return fn
}
