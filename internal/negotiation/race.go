// Package negotiation resolves an interactive decision against an
// asynchronous state change of the session the decision is about.
//
// A race runs two operations at once: a prompt waiting for the user's answer
// and a watcher waiting for the session to change state. The first one to
// complete decides the [Outcome]; the other is cancelled before the race
// returns. When both are ready the answer wins.
package negotiation

import (
	"context"
	"slices"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

// Escape is the end-of-input answer (Ctrl-D). It is legal for every
// question, and callers treat it as a rejection.
const Escape rune = 0x04

// Prompter asks the user a question restricted to a set of single-character
// answers. Ask must withdraw the question without printing anything when ctx
// is cancelled.
type Prompter interface {
	Ask(ctx context.Context, text string, answers []rune) (rune, error)
}

// Watcher notifies fire for each event of kind emitted by session id until
// cancel is called. *event.Bus implements it.
type Watcher interface {
	Watch(id engine.SessionID, kind event.Kind, fire func(event.Event)) (cancel func())
}

// Question is a pending decision scoped to one session.
type Question struct {
	Text    string
	Answers []rune
	Session engine.SessionID
	// Match selects which state changes supersede the question. Nil means
	// any change does.
	Match func(event.Event) bool
}

// AnyChange supersedes on every state change of the watched session.
func AnyChange(event.Event) bool { return true }

// Outcome is the result of a race: either the user's answer or Superseded.
type Outcome struct {
	answer   rune
	answered bool
}

// Superseded is the outcome of a race lost to a state change.
var Superseded = Outcome{}

// Answered returns the outcome of a race won by the prompt.
func Answered(r rune) Outcome {
	return Outcome{answer: r, answered: true}
}

// Answer returns the user's answer, if the prompt won.
func (o Outcome) Answer() (rune, bool) {
	return o.answer, o.answered
}

// IsSuperseded reports whether the watcher won.
func (o Outcome) IsSuperseded() bool { return !o.answered }

func (o Outcome) String() string {
	switch {
	case !o.answered:
		return "superseded"
	case o.answer == Escape:
		return "answered(^D)"
	default:
		return "answered(" + string(o.answer) + ")"
	}
}

// Race starts negotiation races.
type Race struct {
	prompter Prompter
	watcher  Watcher
	logger   *logging.Logger
}

// Option configures a Race.
type Option func(*Race)

// WithLogger sets the logger for the race.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Race) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Race. Both arguments must be non-nil.
func New(prompter Prompter, watcher Watcher, opts ...Option) *Race {
	if prompter == nil {
		panic("negotiation: Prompter must not be nil")
	}
	if watcher == nil {
		panic("negotiation: Watcher must not be nil")
	}
	r := &Race{
		prompter: prompter,
		watcher:  watcher,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a race and waits for its outcome.
func (r *Race) Run(ctx context.Context, q Question) Outcome {
	return r.Start(ctx, q).Wait()
}

// Start subscribes the watcher and shows the prompt, then returns without
// waiting. Subscribing happens before Start returns, so a state change
// published afterwards on the same goroutine is never missed.
//
// If ctx is already done the race is settled as Superseded and nothing is
// shown.
func (r *Race) Start(ctx context.Context, q Question) *Pending {
	if ctx.Err() != nil {
		r.logger.Debug("race skipped, context done", "session_id", string(q.Session))
		return &Pending{settled: true, outcome: Superseded}
	}

	match := q.Match
	if match == nil {
		match = AnyChange
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		ctx:        ctx,
		cancel:     cancel,
		answer:     make(chan rune, 1),
		changed:    make(chan struct{}, 1),
		promptDone: make(chan struct{}),
	}

	p.unwatch = r.watcher.Watch(q.Session, event.KindSessionChangedState, func(e event.Event) {
		if !match(e) {
			return
		}
		select {
		case p.changed <- struct{}{}:
		default:
		}
	})

	answers := q.Answers
	if !slices.Contains(answers, Escape) {
		answers = append(slices.Clone(answers), Escape)
	}

	logger := r.logger.WithSession(string(q.Session))
	p.wg.Go(func() {
		defer close(p.promptDone)
		a, err := r.prompter.Ask(ctx, q.Text, answers)
		if err != nil {
			logger.Debug("prompt ended without answer", "error", err)
			return
		}
		p.answer <- a
	})

	return p
}

// Pending is a running race.
type Pending struct {
	ctx        context.Context
	cancel     context.CancelFunc
	answer     chan rune
	changed    chan struct{}
	promptDone chan struct{}
	unwatch    func()
	wg         conc.WaitGroup

	once    sync.Once
	settled bool
	outcome Outcome
}

// Wait blocks until the race is decided, cancels the loser, and returns the
// outcome. No goroutine or subscription started by the race outlives Wait.
// Calling Wait again returns the same outcome.
func (p *Pending) Wait() Outcome {
	p.once.Do(func() {
		if p.settled {
			return
		}
		p.outcome = p.decide()
		p.settled = true
	})
	return p.outcome
}

func (p *Pending) decide() Outcome {
	defer p.wg.Wait()
	defer p.cancel()
	defer p.unwatch()

	select {
	case a := <-p.answer:
		return Answered(a)
	case <-p.changed:
	case <-p.promptDone:
	case <-p.ctx.Done():
	}

	// The answer wins a tie with any other completion.
	select {
	case a := <-p.answer:
		return Answered(a)
	default:
		return Superseded
	}
}
