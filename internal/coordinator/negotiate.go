package coordinator

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/sipchat/internal/chat"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/negotiation"
)

// declineCode is sent when the user rejects an incoming session.
const declineCode = 603

// startRace shows q and, once the race is decided, runs done on the
// coordinator goroutine. The watcher is subscribed before startRace
// returns, so state changes handled after this event are never missed.
func (c *Coordinator) startRace(q negotiation.Question, done func(negotiation.Outcome)) {
	p := c.races.Start(c.ctx, q)
	c.pending.Go(func() {
		out := p.Wait()
		c.inbox.Publish(event.NewDecision(func() { done(out) }))
	})
}

// handleIncoming asks whether to accept a new incoming session. The session
// is provisional until the user accepts it.
func (c *Coordinator) handleIncoming(ev event.Event) {
	info := ev.Session
	if _, exists := c.sessions[info.ID]; exists {
		c.logger.Warn("duplicate incoming notification", "session_id", string(info.ID))
		return
	}

	cs := chat.New(info)
	c.sessions[info.ID] = cs

	answers := []rune("yYnN")
	choices := "y/n"
	if info.HasStream(engine.StreamAudio) && info.HasStream(engine.StreamChat) {
		answers = append(answers, []rune("aAcC")...)
		choices += "/a/c"
	}

	q := negotiation.Question{
		Text:    fmt.Sprintf("Incoming %s request from %s, do you accept? (%s)", cs.Label(), cs.RemoteParty(), choices),
		Answers: answers,
		Session: info.ID,
	}
	c.logger.Info("incoming session", "session_id", string(info.ID), "remote", info.Remote.String())
	c.startRace(q, func(out negotiation.Outcome) {
		c.resolveIncoming(info.ID, out)
	})
}

func (c *Coordinator) resolveIncoming(id engine.SessionID, out negotiation.Outcome) {
	logger := c.logger.WithSession(string(id))

	cs, ok := c.sessions[id]
	if !ok || c.closing {
		logger.Debug("incoming decision for a session that is gone", "outcome", out.String())
		return
	}

	answer, answered := out.Answer()
	if !answered {
		logger.Info("incoming session superseded")
		c.drop(cs)
		return
	}

	streams := cs.Info().Streams
	switch answer {
	case 'a', 'A':
		streams = []engine.StreamKind{engine.StreamAudio}
	case 'c', 'C':
		streams = []engine.StreamKind{engine.StreamChat}
	}

	switch answer {
	case 'y', 'Y', 'a', 'A', 'c', 'C':
		if err := c.engine.Accept(id, streams); err != nil {
			c.drop(cs)
			c.report(err)
			return
		}
		logger.Info("incoming session accepted", "streams", engine.StreamLabels(streams))
		cs.SetStreams(streams)
		c.register(cs)
	default:
		logger.Info("incoming session rejected")
		c.drop(cs)
		c.report(c.engine.Reject(id, declineCode))
	}
}

// handleProposal asks whether to accept streams the remote party wants to
// add to a registered session. Local proposals need no decision.
func (c *Coordinator) handleProposal(ev event.Event) {
	proposal, _ := ev.Payload.(event.StreamProposal)
	if proposal.Proposer != engine.OriginatorRemote {
		return
	}

	id := ev.SessionID()
	cs, ok := c.sessions[id]
	if !ok || !c.registry.Contains(cs) {
		c.logger.Debug("stream proposal for unregistered session", "session_id", string(id))
		return
	}

	q := negotiation.Question{
		Text: fmt.Sprintf("%s wants to add %s, do you accept? (y/n)",
			cs.RemoteParty(), engine.StreamLabels(proposal.Streams)),
		Answers: []rune("yYnN"),
		Session: id,
	}
	c.startRace(q, func(out negotiation.Outcome) {
		c.resolveProposal(id, out)
	})
}

func (c *Coordinator) resolveProposal(id engine.SessionID, out negotiation.Outcome) {
	cs, ok := c.sessions[id]
	if !ok || c.closing || cs.Info().State.Terminal() {
		c.logger.Debug("proposal decision for a session that is gone", "session_id", string(id))
		return
	}

	answer, answered := out.Answer()
	if answered && slices.Contains([]rune("yY"), answer) {
		c.report(c.engine.AcceptProposal(id))
		return
	}
	c.logger.Info("rejecting stream proposal", "session_id", string(id), "outcome", out.String())
	c.report(c.engine.RejectProposal(id))
}
