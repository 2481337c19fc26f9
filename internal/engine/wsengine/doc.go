// Package wsengine is a peer-to-peer session engine that carries signalling,
// chat and DTMF as JSON frames over one websocket per session.
//
// Every engine listens on its account's address. Placing a session dials the
// remote party's listener at ws://host:port/session and sends an invite; the
// rest of the session's life is a frame exchange on that connection:
//
//	caller                     callee
//	invite        ------->     (INCOMING)
//	              <-------     accept | reject
//	cancel        ------->     (caller gave up before an answer)
//	propose       <------>     proposal_accept | proposal_reject
//	hold, unhold, message, dtmf, remove_stream   (either direction)
//	bye           <------>     connection closed by the receiver
//
// Each state change is published as a session changed_state event followed
// by the notification that explains it (did_start, did_end, did_fail, ...).
// Stream proposals received from the peer do not change state; the proposer
// moves to PROPOSING_STREAMS until the peer answers.
//
// There is no registrar. A started listener is reported as a successful
// registration and Unregister reports it as ended. Audio is signalled but
// not carried, so recording is not supported.
package wsengine
