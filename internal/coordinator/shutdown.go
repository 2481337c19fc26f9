package coordinator

import (
	"context"
	"time"

	"github.com/Iron-Ham/sipchat/internal/engine"
)

// shutdown ends every session, unregisters and stops the engine. Each wait
// is bounded; when a bound expires shutdown proceeds regardless.
func (c *Coordinator) shutdown(ctx context.Context) {
	c.closing = true
	c.cancel()
	if c.numpad != nil {
		c.leaveNumpad()
	}

	ending := make([]engine.SessionID, 0, len(c.sessions))
	for id, cs := range c.sessions {
		c.registry.Remove(cs)
		if !cs.Ending() {
			cs.MarkEnding()
			ending = append(ending, id)
		}
	}
	c.updatePrompt()

	c.logger.Info("ending sessions", "count", len(ending))
	for _, id := range ending {
		if err := c.engine.End(id); err != nil {
			c.logger.Warn("failed to end session", "session_id", string(id), "error", err)
		}
	}
	if len(c.sessions) > 0 {
		c.calming(c.cfg.calmingDelay, "Disconnecting the session(s)...", func() {
			if !c.drainUntil(ctx, c.cfg.sessionTimeout, func() bool { return len(c.sessions) == 0 }) {
				c.logger.Warn("sessions did not end in time", "remaining", len(c.sessions))
			}
		})
	}

	if err := c.engine.Unregister(); err != nil {
		c.logger.Warn("failed to unregister", "error", err)
	}
	if !c.tracker.Empty() {
		if !c.drainUntil(ctx, c.cfg.unregisterTimeout, c.tracker.Empty) {
			c.logger.Warn("accounts did not unregister in time", "accounts", c.tracker.Accounts())
		}
	}

	c.calming(2*c.cfg.calmingDelay, "Stopping the engine...", func() {
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn("failed to stop engine", "error", err)
		}
	})

	c.pending.Wait()
	c.inbox.Close()

	for _, cs := range c.sessions {
		c.drop(cs)
	}
	c.logger.Info("coordinator stopped")
}

// drainUntil handles events until done reports true or timeout elapses. It
// reports whether done was reached.
func (c *Coordinator) drainUntil(ctx context.Context, timeout time.Duration, done func() bool) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for !done() {
		ev, ok := c.inbox.Next(ctx)
		if !ok {
			return done()
		}
		c.handle(ev)
	}
	return true
}

// calming runs fn and prints message if fn takes longer than delay.
func (c *Coordinator) calming(delay time.Duration, message string, fn func()) {
	t := time.AfterFunc(delay, func() {
		c.console.Println(message)
	})
	defer t.Stop()
	fn()
}
