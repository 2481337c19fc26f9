// Package coordinator ties the session engine, the console and the session
// registry together.
//
// All coordination state lives on one goroutine, the one running
// [Coordinator.Run]. Engine notifications, console input and the outcomes
// of negotiation races all arrive through a single bridge and are handled
// strictly one at a time. After an event is handled it is republished on the
// coordinator's event bus, where pending races watch for state changes of
// the session they are about.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sipchat/internal/bridge"
	"github.com/Iron-Ham/sipchat/internal/chat"
	"github.com/Iron-Ham/sipchat/internal/command"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/history"
	"github.com/Iron-Ham/sipchat/internal/logging"
	"github.com/Iron-Ham/sipchat/internal/negotiation"
	"github.com/Iron-Ham/sipchat/internal/registration"
	"github.com/Iron-Ham/sipchat/internal/registry"
)

// Console is the interactive terminal as seen by the coordinator.
// SetPrompt, Println and SetKeyMode may be called from any goroutine.
type Console interface {
	negotiation.Prompter
	SetPrompt(prompt string)
	Println(line string)
	// SetKeyMode switches between line editing and delivering every key
	// as an input key event.
	SetKeyMode(on bool)
}

// Coordinator is the session coordinator. Create it with New and drive it
// with Run.
type Coordinator struct {
	engine  engine.Engine
	console Console
	account engine.Account
	inbox   *bridge.Bridge[event.Event]
	bus     *event.Bus
	races   *negotiation.Race
	logger  *logging.Logger
	cfg     *config

	registry   *registry.Registry[*chat.Session]
	sessions   map[engine.SessionID]*chat.Session
	dispatcher *command.Dispatcher
	tracker    *registration.Tracker
	history    *history.Store

	ctx     context.Context
	cancel  context.CancelFunc
	pending conc.WaitGroup

	numpad  *numpad
	tracer  string
	closing bool
	quit    bool
	fatal   error
}

// New creates a Coordinator for account. inbox must be the bridge the
// engine and the console publish to; the coordinator is its only consumer.
func New(eng engine.Engine, console Console, inbox *bridge.Bridge[event.Event], account engine.Account, opts ...Option) *Coordinator {
	if eng == nil {
		panic("coordinator: Engine must not be nil")
	}
	if console == nil {
		panic("coordinator: Console must not be nil")
	}
	if inbox == nil {
		panic("coordinator: bridge must not be nil")
	}

	cfg := &config{
		logger:            logging.NopLogger(),
		sessionTimeout:    defaultSessionTimeout,
		unregisterTimeout: defaultUnregisterTimeout,
		calmingDelay:      defaultCalmingDelay,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	logger := cfg.logger.WithComponent("coordinator").WithAccount(account.URI.String())
	bus := event.NewBus()

	c := &Coordinator{
		engine:   eng,
		console:  console,
		account:  account,
		inbox:    inbox,
		bus:      bus,
		races:    negotiation.New(console, bus, negotiation.WithLogger(logger)),
		logger:   logger,
		cfg:      cfg,
		registry: registry.New[*chat.Session](),
		sessions: make(map[engine.SessionID]*chat.Session),
		tracker:  registration.NewTracker(),
		history:  cfg.history,
	}
	c.dispatcher = command.New(c.commands()...)
	return c
}

// Run consumes events until the user quits, ctx is cancelled, or the engine
// fails fatally, then shuts down: it ends every session, unregisters, and
// stops the engine. The returned error is non-nil only for fatal engine
// failures.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	if c.cfg.traceNotifications {
		c.setNotificationTrace(true)
	}

	c.updatePrompt()
	c.console.Println("Type :help to get information about commands and shortcuts")
	if len(c.cfg.initialCall) == 0 {
		c.console.Println("Waiting for incoming session requests...")
	} else {
		c.report(c.cmdCall(c.cfg.initialCall))
	}

	for !c.quit {
		ev, ok := c.inbox.Next(c.ctx)
		if !ok {
			c.logger.Debug("event loop stopped", "reason", c.ctx.Err())
			break
		}
		c.handle(ev)
	}

	c.shutdown(context.WithoutCancel(ctx))
	return c.fatal
}

// handle processes one event and then republishes it to watchers.
func (c *Coordinator) handle(ev event.Event) {
	switch ev.Kind {
	case event.KindInputLine:
		if !c.closing {
			c.handleLine(ev.Line())
		}
	case event.KindInputKey:
		if !c.closing {
			c.handleKey(ev.Key())
		}
	case event.KindInputEOF:
		if !c.closing {
			c.handleEOF()
		}
	case event.KindDecision:
		if fn := ev.Continuation(); fn != nil {
			fn()
		}

	case event.KindSessionNewIncoming:
		c.handleIncoming(ev)
	case event.KindSessionChangedState:
		c.handleChangedState(ev)
	case event.KindSessionGotStreamProposal:
		c.handleProposal(ev)
	case event.KindSessionGotStreamUpdate:
		c.refresh(ev.Session)
	case event.KindSessionDidStart:
		c.refresh(ev.Session)
		c.printDidStart(ev)
	case event.KindSessionDidEnd, event.KindSessionDidFail:
		c.handleTermination(ev)
	case event.KindSessionRejectedStreamProposal:
		c.printRejectedProposal(ev)
	case event.KindSessionGotHoldRequest, event.KindSessionGotUnholdRequest:
		c.handleHold(ev)
	case event.KindSessionGotDTMF:
		c.printDTMF(ev)
	case event.KindSessionDidStartRecording, event.KindSessionDidStopRecording:
		c.handleRecording(ev)
	case event.KindChatGotMessage:
		c.handleChatMessage(ev)

	case event.KindRegistrationDidSucceed, event.KindRegistrationDidFail, event.KindRegistrationDidEnd:
		c.tracker.Observe(ev)
		c.printRegistration(ev)

	default:
		c.logger.Debug("ignoring event", "event", ev.EventType())
	}

	c.bus.Publish(ev)
}

func (c *Coordinator) handleChangedState(ev event.Event) {
	cs, ok := c.sessions[ev.SessionID()]
	if !ok {
		return
	}
	cs.Update(ev.Session)
	c.logger.Debug("session changed state",
		"session_id", string(cs.ID()),
		"state", string(ev.Session.State))
	c.updatePrompt()
}

// refresh stores a newer snapshot for a known session.
func (c *Coordinator) refresh(info engine.SessionInfo) {
	cs, ok := c.sessions[info.ID]
	if !ok {
		return
	}
	cs.Update(info)
	c.updatePrompt()
}

// handleTermination removes an ended or failed session. Sessions that were
// never registered are tolerated.
func (c *Coordinator) handleTermination(ev event.Event) {
	c.printTermination(ev)

	cs, ok := c.sessions[ev.SessionID()]
	if !ok {
		return
	}
	cs.Update(ev.Session)
	c.drop(cs)
	c.updatePrompt()
}

// register makes cs a registered session and the current one.
func (c *Coordinator) register(cs *chat.Session) {
	c.sessions[cs.ID()] = cs
	c.registry.Add(cs, true)
	c.openTranscript(cs)
	c.updatePrompt()
}

// drop forgets cs entirely.
func (c *Coordinator) drop(cs *chat.Session) {
	delete(c.sessions, cs.ID())
	c.registry.Remove(cs)
	if c.numpad != nil && c.numpad.session == cs {
		c.leaveNumpad()
	}
	if err := cs.Close(); err != nil {
		c.logger.Warn("failed to close transcript", "session_id", string(cs.ID()), "error", err)
	}
}

func (c *Coordinator) openTranscript(cs *chat.Session) {
	if cs.HasTranscript() || !c.history.Enabled() {
		return
	}
	info := cs.Info()
	t, err := c.history.Open(info.Local, info.Remote, info.Outgoing)
	if err != nil {
		c.logger.Warn("failed to open transcript", "session_id", string(cs.ID()), "error", err)
		return
	}
	cs.AttachTranscript(t)
}

// current returns the current session or a user error.
func (c *Coordinator) current(prefix string) (*chat.Session, error) {
	cs, ok := c.registry.Current()
	if !ok {
		if prefix != "" {
			return nil, errors.NewUserCommandError(prefix, errors.ErrNoActiveSession)
		}
		return nil, errors.UserErrorf("No active session").WithSentinel(errors.ErrNoActiveSession)
	}
	return cs, nil
}

// updatePrompt recomputes the status line from the registry.
func (c *Coordinator) updatePrompt() {
	if c.numpad != nil {
		return
	}
	c.console.SetPrompt(c.prompt())
}

func (c *Coordinator) prompt() string {
	cs, ok := c.registry.Current()
	if !ok {
		u := c.account.URI
		if u.Port == 0 || u.Port == engine.DefaultPort {
			return fmt.Sprintf("%s@%s> ", u.User, u.Host)
		}
		return fmt.Sprintf("%s@%s:%d> ", u.User, u.Host, u.Port)
	}

	prefix := ""
	if n := c.registry.Len(); n > 1 {
		prefix = fmt.Sprintf("%d/%d ", c.registry.Index(cs)+1, n)
	}
	return prefix + cs.FormatPrompt()
}

// report prints a command error. Fatal errors stop the event loop.
func (c *Coordinator) report(err error) {
	if err == nil {
		return
	}
	if errors.IsFatal(err) {
		c.logger.Error("fatal engine error", "error", err)
		c.fatal = err
		c.quit = true
		return
	}
	if !errors.IsUserFacing(err) {
		c.logger.Warn("command failed", "error", err)
	}
	c.console.Println(err.Error())
}
