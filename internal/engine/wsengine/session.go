package wsengine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

const dtmfQueueSize = 32

var reasonPhrases = map[int]string{
	400: "Bad Request",
	482: "Loop Detected",
	486: "Busy Here",
	487: "Request Terminated",
	488: "Not Acceptable Here",
	491: "Request Pending",
	503: "Service Unavailable",
	603: "Decline",
}

func reasonPhrase(code int) string {
	if r, ok := reasonPhrases[code]; ok {
		return r
	}
	return "Unknown"
}

// session is one websocket-backed session. mu serialises state changes,
// frame writes and event publication, so each session's events are
// published in the order its state changed.
type session struct {
	e       *Engine
	id      engine.SessionID
	logger  *logging.Logger
	limiter *rate.Limiter
	dtmf    chan rune
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	info      engine.SessionInfo
	conn      *websocket.Conn
	proposal  []engine.StreamKind // proposed by the peer, awaiting our answer
	proposing []engine.StreamKind // proposed by us
	endedBy   engine.Originator
	byeTimer  *time.Timer
}

func (e *Engine) newSession(info engine.SessionInfo) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		e:       e,
		id:      info.ID,
		logger:  e.logger.WithSession(string(info.ID)),
		limiter: rate.NewLimiter(rate.Limit(e.dtmfRate), 1),
		dtmf:    make(chan rune, dtmfQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		info:    info,
	}
}

func (s *session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *session) snapshot() engine.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() engine.SessionInfo {
	info := s.info
	info.Streams = slices.Clone(s.info.Streams)
	return info
}

// stateError reports a command that is not valid in the current state.
func (s *session) stateError(op string) error {
	return errors.Wrapf(errors.ErrInvalidInput, "cannot %s while session is %s", op, s.info.State)
}

func (s *session) writeLocked(f frame) error {
	if s.conn == nil {
		return errors.Wrap(errors.ErrConnectionClosed, "not connected")
	}
	f.Session = s.id
	payload, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	s.e.traceFrame("out", f)
	return nil
}

// changeLocked moves to a non-terminal state and publishes the change.
func (s *session) changeLocked(to engine.State) {
	prev := s.info.State
	s.info.State = to
	s.e.trace(TraceEngine, fmt.Sprintf("session %s %s -> %s", s.id, prev, to))
	s.e.publish(event.NewChangedState(s.snapshotLocked(), prev))
}

func (s *session) terminate(state engine.State, explain func(engine.SessionInfo) event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(state, explain)
}

// terminateLocked moves to a terminal state, releases the connection and
// publishes the change followed by explain's event. It is a no-op once the
// session is terminal.
func (s *session) terminateLocked(state engine.State, explain func(engine.SessionInfo) event.Event) {
	if s.info.State.Terminal() {
		return
	}
	prev := s.info.State
	s.info.State = state
	if !s.info.StartTime.IsZero() {
		s.info.StopTime = time.Now()
	}
	s.closeLocked()
	s.e.forget(s.id)

	info := s.snapshotLocked()
	s.logger.Info("session terminated", "state", string(state))
	s.e.trace(TraceEngine, fmt.Sprintf("session %s %s -> %s", s.id, prev, state))
	s.e.publish(event.NewChangedState(info, prev))
	s.e.publish(explain(info))
}

func (s *session) closeLocked() {
	s.cancel()
	if s.byeTimer != nil {
		s.byeTimer.Stop()
	}
	if s.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.conn.Close()
}

func failed(origin engine.Originator, code int, reason string) func(engine.SessionInfo) event.Event {
	return func(info engine.SessionInfo) event.Event {
		return event.NewDidFail(info, origin, code, reason)
	}
}

func ended(origin engine.Originator) func(engine.SessionInfo) event.Event {
	return func(info engine.SessionInfo) event.Event {
		return event.NewDidEnd(info, origin)
	}
}

// dial opens the connection of an outgoing session and sends the invite.
func (s *session) dial() {
	s.mu.Lock()
	local, remote := s.info.Local, s.info.Remote
	streams := slices.Clone(s.info.Streams)
	s.mu.Unlock()

	url := fmt.Sprintf("ws://%s%s", remote.Address(), SessionPath)
	conn, _, err := s.e.dialer.DialContext(s.ctx, url, nil)
	if err != nil {
		s.logger.Warn("dial failed", "url", url, "error", err)
		s.terminate(engine.StateFailed, failed(engine.OriginatorLocal, 0, err.Error()))
		return
	}

	s.mu.Lock()
	if s.info.State.Terminal() {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	err = s.writeLocked(frame{
		Type:      frameInvite,
		Version:   ProtocolVersion,
		From:      &local,
		To:        &remote,
		Streams:   streams,
		UserAgent: s.e.userAgent,
	})
	if err != nil {
		s.terminateLocked(engine.StateFailed, failed(engine.OriginatorLocal, 0, "Connection lost"))
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.readLoop()
}

func (s *session) readLoop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(err)
			return
		}
		f, err := decodeFrame(payload)
		if err != nil {
			s.logger.Warn("dropping bad frame", "error", err)
			continue
		}
		s.e.traceFrame("in", f)
		if !s.handle(f) {
			return
		}
	}
}

func (s *session) connectionLost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.info.State {
	case engine.StateEnded, engine.StateFailed:
	case engine.StateEnding:
		s.terminateLocked(engine.StateEnded, ended(s.endedBy))
	default:
		s.logger.Warn("connection lost", "error", err)
		s.terminateLocked(engine.StateFailed, failed(engine.OriginatorRemote, 0, "Connection lost"))
	}
}

// handle applies one frame from the peer and reports whether the session
// is still alive.
func (s *session) handle(f frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.info.State
	switch f.Type {
	case frameAccept:
		if state != engine.StateConnecting {
			break
		}
		var accepted []engine.StreamKind
		for _, k := range f.Streams {
			if engine.HasStream(s.info.Streams, k) {
				accepted = append(accepted, k)
			}
		}
		s.info.Streams = accepted
		s.info.RemoteUserAgent = f.UserAgent
		s.info.StartTime = time.Now()
		s.changeLocked(engine.StateConfirmed)
		s.e.publish(event.NewDidStart(s.snapshotLocked()))

	case frameReject:
		if state == engine.StateConnecting {
			reason := f.Reason
			if reason == "" {
				reason = reasonPhrase(f.Code)
			}
			s.terminateLocked(engine.StateFailed, failed(engine.OriginatorRemote, f.Code, reason))
		}

	case frameCancel:
		if state == engine.StateIncoming {
			s.terminateLocked(engine.StateFailed, failed(engine.OriginatorRemote, 487, reasonPhrase(487)))
		}

	case frameBye:
		s.terminateLocked(engine.StateEnded, ended(engine.OriginatorRemote))

	case framePropose:
		var added []engine.StreamKind
		for _, k := range f.Streams {
			if !engine.HasStream(s.info.Streams, k) {
				added = append(added, k)
			}
		}
		if state != engine.StateConfirmed || s.proposal != nil || len(added) == 0 {
			_ = s.writeLocked(frame{Type: frameProposalReject, Code: 491, Reason: reasonPhrase(491)})
			break
		}
		s.proposal = added
		s.e.publish(event.NewStreamProposal(s.snapshotLocked(), engine.OriginatorRemote, slices.Clone(added)))

	case frameProposalAccept:
		if state != engine.StateProposingStreams {
			break
		}
		s.info.Streams = append(s.info.Streams, s.proposing...)
		s.proposing = nil
		s.changeLocked(engine.StateConfirmed)
		s.e.publish(event.NewStreamUpdate(s.snapshotLocked()))

	case frameProposalReject:
		if state != engine.StateProposingStreams {
			break
		}
		s.proposing = nil
		s.changeLocked(engine.StateConfirmed)
		reason := f.Reason
		if reason == "" {
			reason = "Remote party rejected the proposal"
		}
		s.e.publish(event.NewRejectedProposal(s.snapshotLocked(), engine.OriginatorRemote, f.Code, reason))

	case frameRemoveStream:
		s.info.Streams = slices.DeleteFunc(s.info.Streams, func(k engine.StreamKind) bool { return k == f.Streams[0] })
		s.e.publish(event.NewStreamUpdate(s.snapshotLocked()))

	case frameHold:
		s.e.publish(event.NewHold(s.snapshotLocked(), engine.OriginatorRemote))
	case frameUnhold:
		s.e.publish(event.NewUnhold(s.snapshotLocked(), engine.OriginatorRemote))

	case frameMessage:
		sent := f.Time
		if sent.IsZero() {
			sent = time.Now()
		}
		s.e.publish(event.NewChatMessage(s.snapshotLocked(), s.info.Remote, f.Text, sent))

	case frameDTMF:
		s.e.publish(event.NewDTMF(s.snapshotLocked(), []rune(f.Digit)[0]))

	default:
		s.logger.Debug("ignoring frame", "type", string(f.Type))
	}
	return !s.info.State.Terminal()
}

func (s *session) accept(streams []engine.StreamKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != engine.StateIncoming {
		return s.stateError("accept")
	}
	var accepted []engine.StreamKind
	for _, k := range streams {
		if engine.HasStream(s.info.Streams, k) && !engine.HasStream(accepted, k) {
			accepted = append(accepted, k)
		}
	}
	if len(accepted) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "none of the offered streams accepted")
	}

	if err := s.writeLocked(frame{Type: frameAccept, Streams: accepted, UserAgent: s.e.userAgent}); err != nil {
		s.terminateLocked(engine.StateFailed, failed(engine.OriginatorLocal, 0, "Connection lost"))
		return err
	}
	s.info.Streams = accepted
	s.info.StartTime = time.Now()
	s.changeLocked(engine.StateConfirmed)
	s.e.publish(event.NewDidStart(s.snapshotLocked()))
	return nil
}

func (s *session) reject(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != engine.StateIncoming {
		return s.stateError("reject")
	}
	reason := reasonPhrase(code)
	err := s.writeLocked(frame{Type: frameReject, Code: code, Reason: reason})
	s.terminateLocked(engine.StateFailed, failed(engine.OriginatorLocal, code, reason))
	return err
}

func (s *session) answerProposal(accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proposal == nil {
		return errors.Wrap(errors.ErrInvalidInput, "no pending stream proposal")
	}
	added := s.proposal
	s.proposal = nil

	if !accept {
		return s.writeLocked(frame{Type: frameProposalReject, Code: 488, Reason: reasonPhrase(488)})
	}
	if err := s.writeLocked(frame{Type: frameProposalAccept, Streams: added}); err != nil {
		return err
	}
	s.info.Streams = append(s.info.Streams, added...)
	s.e.publish(event.NewStreamUpdate(s.snapshotLocked()))
	return nil
}

func (s *session) propose(kind engine.StreamKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.info.State != engine.StateConfirmed:
		return s.stateError("add a stream")
	case engine.HasStream(s.info.Streams, kind):
		return errors.Wrapf(errors.ErrInvalidInput, "session already has %s", kind)
	}
	streams := []engine.StreamKind{kind}
	if err := s.writeLocked(frame{Type: framePropose, Streams: streams}); err != nil {
		return err
	}
	s.proposing = streams
	s.changeLocked(engine.StateProposingStreams)
	s.e.publish(event.NewStreamProposal(s.snapshotLocked(), engine.OriginatorLocal, slices.Clone(streams)))
	return nil
}

func (s *session) removeStream(kind engine.StreamKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.info.State != engine.StateConfirmed:
		return s.stateError("remove a stream")
	case !engine.HasStream(s.info.Streams, kind):
		return errors.Wrapf(errors.ErrInvalidInput, "session has no %s stream", kind)
	case len(s.info.Streams) == 1:
		return s.endLocked()
	}
	if err := s.writeLocked(frame{Type: frameRemoveStream, Streams: []engine.StreamKind{kind}}); err != nil {
		return err
	}
	s.info.Streams = slices.DeleteFunc(s.info.Streams, func(k engine.StreamKind) bool { return k == kind })
	s.e.publish(event.NewStreamUpdate(s.snapshotLocked()))
	return nil
}

func (s *session) hold(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != engine.StateConfirmed {
		return s.stateError("change hold")
	}
	if !s.info.HasStream(engine.StreamAudio) {
		return errors.Wrap(errors.ErrInvalidInput, "session has no audio stream")
	}
	ft, mk := frameHold, event.NewHold
	if !on {
		ft, mk = frameUnhold, event.NewUnhold
	}
	if err := s.writeLocked(frame{Type: ft}); err != nil {
		return err
	}
	s.info.OnHold = on
	s.e.publish(mk(s.snapshotLocked(), engine.OriginatorLocal))
	return nil
}

func (s *session) queueDTMF(digit rune) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.State != engine.StateConfirmed {
		return s.stateError("send DTMF")
	}
	if !s.info.HasStream(engine.StreamAudio) {
		return errors.Wrap(errors.ErrInvalidInput, "session has no audio stream")
	}
	select {
	case s.dtmf <- digit:
		return nil
	default:
		return errors.Wrap(errors.ErrInvalidInput, "too many DTMF digits queued")
	}
}

// dtmfLoop sends queued digits no faster than the engine's DTMF rate.
func (s *session) dtmfLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case d := <-s.dtmf:
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
			s.mu.Lock()
			if s.info.State == engine.StateConfirmed {
				if err := s.writeLocked(frame{Type: frameDTMF, Digit: string(d)}); err != nil {
					s.logger.Warn("failed to send DTMF", "digit", string(d), "error", err)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *session) sendMessage(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.info.State {
	case engine.StateConfirmed, engine.StateProposingStreams:
	case engine.StateEnding, engine.StateEnded, engine.StateFailed:
		return errors.ErrConnectionClosed
	default:
		return s.stateError("send a message")
	}
	if !s.info.HasStream(engine.StreamChat) {
		return errors.Wrap(errors.ErrInvalidInput, "session has no chat stream")
	}
	return s.writeLocked(frame{Type: frameMessage, Text: text, Time: time.Now()})
}

func (s *session) end() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endLocked()
}

func (s *session) endLocked() error {
	switch s.info.State {
	case engine.StateConnecting:
		if s.conn != nil {
			_ = s.writeLocked(frame{Type: frameCancel})
		}
		s.terminateLocked(engine.StateFailed, failed(engine.OriginatorLocal, 487, reasonPhrase(487)))
	case engine.StateIncoming:
		_ = s.writeLocked(frame{Type: frameReject, Code: 603, Reason: reasonPhrase(603)})
		s.terminateLocked(engine.StateFailed, failed(engine.OriginatorLocal, 603, reasonPhrase(603)))
	case engine.StateConfirmed, engine.StateProposingStreams:
		if err := s.writeLocked(frame{Type: frameBye}); err != nil {
			s.terminateLocked(engine.StateEnded, ended(engine.OriginatorLocal))
			return nil
		}
		s.endedBy = engine.OriginatorLocal
		s.changeLocked(engine.StateEnding)
		s.byeTimer = time.AfterFunc(s.e.byeTimeout, func() {
			s.terminate(engine.StateEnded, ended(engine.OriginatorLocal))
		})
	}
	return nil
}
