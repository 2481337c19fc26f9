// Package engine defines the contract between the coordinator and a session
// engine: the component that owns signaling, media, and registration.
//
// Engines report everything they do asynchronously through an
// event.Publisher. Commands are fire-and-forget: a command returning nil
// means it was accepted, and its outcome arrives later as an event.
package engine

import (
	"context"
	"time"
)

// Account is the local identity the engine registers and places calls as.
type Account struct {
	ID          string
	URI         URI
	DisplayName string
	Password    string
	Register    bool
}

// Engine is the command surface of a session engine. All methods are safe
// to call from the coordinator goroutine; none of them block on the network
// for longer than a local write.
type Engine interface {
	// Start brings the engine up for account. Registration results are
	// reported as registration events.
	Start(ctx context.Context, account Account) error
	// Unregister withdraws every registration. Completion is reported with
	// a registration did_end event per account.
	Unregister() error
	// Stop tears the engine down. Sessions still alive are dropped.
	Stop() error

	// Connect places an outgoing session to remote with the given streams
	// and returns its initial snapshot. Progress is reported as session
	// events.
	Connect(remote URI, streams []StreamKind) (SessionInfo, error)
	// Accept answers an incoming session with the given subset of its
	// offered streams.
	Accept(id SessionID, streams []StreamKind) error
	// Reject declines an incoming session with a SIP-style status code.
	Reject(id SessionID, code int) error
	// AcceptProposal accepts the pending stream proposal on a session.
	AcceptProposal(id SessionID) error
	// RejectProposal declines the pending stream proposal on a session.
	RejectProposal(id SessionID) error
	AddStream(id SessionID, kind StreamKind) error
	RemoveStream(id SessionID, kind StreamKind) error
	Hold(id SessionID) error
	Unhold(id SessionID) error
	SendDTMF(id SessionID, digit rune) error
	// SendMessage sends a chat message. It returns errors.ErrConnectionClosed
	// when the session transport is gone.
	SendMessage(id SessionID, text string) error
	// End terminates a session in any state.
	End(id SessionID) error

	// StartRecording and StopRecording may return errors.ErrNotSupported.
	StartRecording(id SessionID) error
	StopRecording(id SessionID) error

	// ToggleTrace flips tracing of category and returns the new state.
	ToggleTrace(category string) (bool, error)
	EchoTailLength() time.Duration
	SetEchoTailLength(d time.Duration) error
}
