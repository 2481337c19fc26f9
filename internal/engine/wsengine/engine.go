package wsengine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

// SessionPath is the HTTP path peers dial to open a session.
const SessionPath = "/session"

// Trace categories.
const (
	TraceSIP    = "sip"
	TraceMSRP   = "msrp"
	TraceEngine = "engine"
)

// Engine implements engine.Engine over websockets.
type Engine struct {
	publisher event.Publisher
	logger    *logging.Logger

	listenAddr  string
	userAgent   string
	dtmfRate    float64
	dialTimeout time.Duration
	byeTimeout  time.Duration
	tracer      func(string)

	mu         sync.Mutex
	account    engine.Account
	sessions   map[engine.SessionID]*session
	traces     map[string]bool
	echoTail   time.Duration
	listener   net.Listener
	server     *http.Server
	registered bool
	started    bool
	stopped    bool

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	wg       conc.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// New creates an Engine that reports to publisher.
func New(publisher event.Publisher, opts ...Option) *Engine {
	if publisher == nil {
		panic("wsengine: publisher must not be nil")
	}
	e := &Engine{
		publisher:   publisher,
		logger:      logging.NopLogger(),
		userAgent:   "sipchat",
		dtmfRate:    defaultDTMFRate,
		dialTimeout: defaultDialTimeout,
		byeTimeout:  defaultByeTimeout,
		echoTail:    defaultEchoTailLength,
		sessions:    make(map[engine.SessionID]*session),
		traces:      make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")
	e.dialer = &websocket.Dialer{HandshakeTimeout: e.dialTimeout}
	return e
}

// Start listens for sessions addressed to account.
func (e *Engine) Start(ctx context.Context, account engine.Account) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.NewEngineError("start", errors.New("engine already started"))
	}
	e.started = true
	e.account = account
	addr := e.listenAddr
	e.mu.Unlock()

	if addr == "" {
		port := account.URI.Port
		if port == 0 {
			port = engine.DefaultPort
		}
		addr = net.JoinHostPort("", strconv.Itoa(port))
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.NewEngineError("start", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(SessionPath, e.serveSession)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: e.dialTimeout}

	e.mu.Lock()
	e.listener = ln
	e.server = server
	e.registered = account.Register
	e.mu.Unlock()

	e.wg.Go(func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("listener stopped", "error", err)
		}
	})
	e.logger.Info("engine started", "account", account.URI.String(), "listen", ln.Addr().String())

	if account.Register {
		e.publish(event.NewRegistration(event.KindRegistrationDidSucceed, account.URI.String(), event.Registration{
			Contact: fmt.Sprintf("%s@%s", account.URI.User, ln.Addr()),
			Expires: defaultRegistration,
		}))
	}
	return nil
}

// Addr returns the listening address, or nil before Start.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// Unregister reports the end of the listener's registration.
func (e *Engine) Unregister() error {
	e.mu.Lock()
	was := e.registered
	e.registered = false
	uri := e.account.URI
	e.mu.Unlock()

	if was {
		e.publish(event.NewRegistration(event.KindRegistrationDidEnd, uri.String(), event.Registration{}))
	}
	return nil
}

// Stop closes the listener and drops every session without notifying peers.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	server := e.server
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.terminate(engine.StateEnded, func(info engine.SessionInfo) event.Event {
			return event.NewDidEnd(info, engine.OriginatorLocal)
		})
	}

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.byeTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
			err = errors.NewEngineError("stop", shutdownErr)
		}
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
	return err
}

// serveSession upgrades an incoming connection and waits for its invite.
func (e *Engine) serveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if err := conn.SetReadDeadline(time.Now().Add(e.dialTimeout)); err != nil {
		conn.Close()
		return
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		e.logger.Warn("no invite received", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}
	invite, err := decodeFrame(payload)
	if err == nil && invite.Type != frameInvite {
		err = errors.Wrapf(errors.ErrInvalidInput, "expected invite, got %s", invite.Type)
	}
	if err != nil {
		e.logger.Warn("bad invite", "remote", r.RemoteAddr, "error", err)
		e.refuse(conn, 400, "Bad Request")
		return
	}
	e.traceFrame("in", invite)
	if invite.Version != ProtocolVersion {
		e.refuse(conn, 488, "Not Acceptable Here")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	e.mu.Lock()
	_, dup := e.sessions[invite.Session]
	stopped := e.stopped
	local := e.account.URI
	e.mu.Unlock()
	switch {
	case stopped:
		e.refuse(conn, 503, "Service Unavailable")
		return
	case dup:
		e.refuse(conn, 482, "Loop Detected")
		return
	}

	info := engine.SessionInfo{
		ID:              invite.Session,
		Local:           local,
		Remote:          *invite.From,
		State:           engine.StateIncoming,
		Streams:         invite.Streams,
		RemoteUserAgent: invite.UserAgent,
	}
	s := e.newSession(info)
	s.attach(conn)
	if !e.add(s) {
		e.refuse(conn, 503, "Service Unavailable")
		return
	}

	e.logger.Info("incoming session", "session_id", string(info.ID), "remote", info.Remote.String())
	e.publish(event.NewIncoming(s.snapshot()))
	e.wg.Go(s.readLoop)
}

// refuse answers an invite that never became a session.
func (e *Engine) refuse(conn *websocket.Conn, code int, reason string) {
	f := frame{Type: frameReject, Code: code, Reason: reason}
	if payload, err := encodeFrame(f); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}
	conn.Close()
}

// Connect dials remote and sends an invite. The handshake runs in the
// background; the returned snapshot is in state CONNECTING.
func (e *Engine) Connect(remote engine.URI, streams []engine.StreamKind) (engine.SessionInfo, error) {
	if len(streams) == 0 {
		return engine.SessionInfo{}, errors.Wrap(errors.ErrInvalidInput, "no streams to propose")
	}

	e.mu.Lock()
	local := e.account.URI
	ready := e.started && !e.stopped
	e.mu.Unlock()
	if !ready {
		return engine.SessionInfo{}, errors.NewEngineError("connect", errors.New("engine is not running"))
	}

	info := engine.SessionInfo{
		ID:       engine.SessionID(uuid.NewString()),
		Local:    local,
		Remote:   remote,
		State:    engine.StateConnecting,
		Streams:  streams,
		Outgoing: true,
	}
	s := e.newSession(info)
	if !e.add(s) {
		return engine.SessionInfo{}, errors.NewEngineError("connect", errors.New("engine is stopping"))
	}
	e.logger.Info("outgoing session", "session_id", string(info.ID), "remote", remote.String())
	e.wg.Go(s.dial)
	return s.snapshot(), nil
}

// add registers s and starts its DTMF sender. It fails once the engine is
// stopping.
func (e *Engine) add(s *session) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		s.cancel()
		return false
	}
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.wg.Go(s.dtmfLoop)
	return true
}

func (e *Engine) forget(id engine.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
}

func (e *Engine) lookup(id engine.SessionID) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownSession, "session %s", id)
	}
	return s, nil
}

// Accept answers an incoming session.
func (e *Engine) Accept(id engine.SessionID, streams []engine.StreamKind) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.accept(streams)
}

// Reject declines an incoming session with code.
func (e *Engine) Reject(id engine.SessionID, code int) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.reject(code)
}

// AcceptProposal accepts the peer's pending stream proposal.
func (e *Engine) AcceptProposal(id engine.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.answerProposal(true)
}

// RejectProposal declines the peer's pending stream proposal.
func (e *Engine) RejectProposal(id engine.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.answerProposal(false)
}

// AddStream proposes kind to the peer.
func (e *Engine) AddStream(id engine.SessionID, kind engine.StreamKind) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.propose(kind)
}

// RemoveStream drops kind from the session. Removing the last stream ends it.
func (e *Engine) RemoveStream(id engine.SessionID, kind engine.StreamKind) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.removeStream(kind)
}

// Hold puts the session's audio on hold.
func (e *Engine) Hold(id engine.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.hold(true)
}

// Unhold takes the session's audio off hold.
func (e *Engine) Unhold(id engine.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.hold(false)
}

// SendDTMF queues a digit. Digits are paced by the DTMF rate limit.
func (e *Engine) SendDTMF(id engine.SessionID, digit rune) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.queueDTMF(digit)
}

// SendMessage sends a chat message.
func (e *Engine) SendMessage(id engine.SessionID, text string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.sendMessage(text)
}

// End cancels, rejects or hangs up the session depending on its state.
// Ending a session that is already gone is not an error.
func (e *Engine) End(id engine.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		e.logger.Debug("end for unknown session", "session_id", string(id))
		return nil
	}
	return s.end()
}

// StartRecording is not supported.
func (e *Engine) StartRecording(engine.SessionID) error {
	return errors.ErrNotSupported
}

// StopRecording is not supported.
func (e *Engine) StopRecording(engine.SessionID) error {
	return errors.ErrNotSupported
}

// ToggleTrace flips sip, msrp or engine tracing.
func (e *Engine) ToggleTrace(category string) (bool, error) {
	switch category {
	case TraceSIP, TraceMSRP, TraceEngine:
	default:
		return false, errors.Wrapf(errors.ErrInvalidInput, "unknown trace category %q", category)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traces[category] = !e.traces[category]
	return e.traces[category], nil
}

// EchoTailLength returns the echo cancellation tail length.
func (e *Engine) EchoTailLength() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.echoTail
}

// SetEchoTailLength stores the echo cancellation tail length.
func (e *Engine) SetEchoTailLength(d time.Duration) error {
	if d < 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "negative echo tail length %v", d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.echoTail = d
	return nil
}

func (e *Engine) publish(ev event.Event) {
	e.publisher.Publish(ev)
}

func (e *Engine) tracing(category string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.traces[category]
}

func (e *Engine) trace(category, line string) {
	if !e.tracing(category) {
		return
	}
	if e.tracer != nil {
		e.tracer(line)
		return
	}
	e.logger.Info("trace", "category", category, "line", line)
}

func (e *Engine) traceFrame(direction string, f frame) {
	category := f.category()
	if !e.tracing(category) {
		return
	}
	payload, err := encodeFrame(f)
	if err != nil {
		return
	}
	e.trace(category, fmt.Sprintf("%s %s %s", direction, f.Type, payload))
}
