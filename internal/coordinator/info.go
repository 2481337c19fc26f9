package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/sipchat/internal/chat"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/event"
)

func (c *Coordinator) printDidStart(ev event.Event) {
	info := ev.Session
	c.console.Println(fmt.Sprintf("%s session established with %s",
		engine.StreamLabels(info.Streams), info.Remote.Format()))
	if info.RemoteUserAgent != "" {
		c.console.Println(fmt.Sprintf("Remote user agent is %q", info.RemoteUserAgent))
	}
}

func (c *Coordinator) printTermination(ev event.Event) {
	term, _ := ev.Payload.(event.Termination)
	if ev.Kind == event.KindSessionDidFail {
		if term.Code != 0 {
			c.console.Println(fmt.Sprintf("Session failed: %d %s", term.Code, term.Reason))
		} else {
			c.console.Println(fmt.Sprintf("Session failed: %s", term.Reason))
		}
		return
	}

	after := ""
	if d := ev.Session.Duration(); d > 0 {
		after = " after " + formatDuration(d)
	}
	c.console.Println(fmt.Sprintf("Session ended by %s party%s.", term.Originator, after))
}

// formatDuration renders "N days, N minutes, N seconds", leaving out
// leading zero units.
func formatDuration(d time.Duration) string {
	total := int(d / time.Second)
	days := total / 86400
	secs := total % 86400

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%d days, ", days)
	}
	if secs > 60 {
		fmt.Fprintf(&b, "%d minutes, ", secs/60)
	}
	fmt.Fprintf(&b, "%d seconds", secs%60)
	return b.String()
}

func (c *Coordinator) printRejectedProposal(ev event.Event) {
	term, _ := ev.Payload.(event.Termination)
	reason := term.Reason
	if reason == "" {
		reason = "Stream proposal rejected"
	}
	c.console.Println(reason)
}

func (c *Coordinator) handleHold(ev event.Event) {
	req, _ := ev.Payload.(event.HoldRequest)
	hold := ev.Kind == event.KindSessionGotHoldRequest

	if cs, ok := c.sessions[ev.SessionID()]; ok && req.Originator == engine.OriginatorLocal {
		cs.SetHoldIntent(hold)
	}
	c.refresh(ev.Session)

	switch {
	case hold && req.Originator == engine.OriginatorLocal:
		c.console.Println("Call is put on hold")
	case hold:
		c.console.Println("Remote party has put the audio session on hold")
	case req.Originator == engine.OriginatorLocal:
		c.console.Println("Call is taken out of hold")
	default:
		c.console.Println("Remote party has taken the audio session out of hold")
	}
}

func (c *Coordinator) printDTMF(ev event.Event) {
	dtmf, _ := ev.Payload.(event.DTMF)
	c.console.Println(fmt.Sprintf("Got DTMF %c from %s", dtmf.Digit, ev.Session.Remote.Format()))
}

func (c *Coordinator) handleRecording(ev event.Event) {
	rec, _ := ev.Payload.(event.Recording)
	started := ev.Kind == event.KindSessionDidStartRecording

	if cs, ok := c.sessions[ev.SessionID()]; ok {
		if started {
			cs.SetRecording(rec.FileName)
		} else {
			cs.SetRecording("")
		}
	}

	if started {
		c.console.Println(fmt.Sprintf("Recording audio to %q", rec.FileName))
	} else {
		c.console.Println(fmt.Sprintf("Stopped recording audio to %q", rec.FileName))
	}
}

func (c *Coordinator) handleChatMessage(ev event.Event) {
	msg, _ := ev.Payload.(event.ChatMessage)
	line := chat.FormatMessage(msg.Sent, c.cfg.now(), msg.From.Format(), msg.Text)
	c.console.Println(line)

	if cs, ok := c.sessions[ev.SessionID()]; ok {
		if err := cs.Log(line); err != nil {
			c.logger.Warn("failed to write transcript", "session_id", string(cs.ID()), "error", err)
		}
	}
}

func (c *Coordinator) printRegistration(ev event.Event) {
	reg, _ := ev.Payload.(event.Registration)

	switch ev.Kind {
	case event.KindRegistrationDidSucceed:
		c.console.Println(fmt.Sprintf("Registered contact %q for sip:%s (expires in %d seconds)",
			reg.Contact, ev.Account, int(reg.Expires/time.Second)))
	case event.KindRegistrationDidFail:
		status := reg.Reason
		if reg.Code != 0 {
			status = fmt.Sprintf("%d %s", reg.Code, reg.Reason)
		}
		line := fmt.Sprintf("Failed to register contact for sip:%s: %s.", ev.Account, status)
		if reg.RetryIn > 0 {
			line += fmt.Sprintf(" Retrying in %.2f seconds.", reg.RetryIn.Seconds())
		}
		c.console.Println(line)
	case event.KindRegistrationDidEnd:
		if reg.Code != 0 {
			c.console.Println(fmt.Sprintf("Registration ended: %d %s.", reg.Code, reg.Reason))
		} else {
			c.console.Println("Registration ended.")
		}
	}
}

// setNotificationTrace subscribes or unsubscribes the notification printer
// and returns whether tracing is now on.
func (c *Coordinator) setNotificationTrace(on bool) bool {
	if on == (c.tracer != "") {
		return on
	}
	if !on {
		c.bus.Unsubscribe(c.tracer)
		c.tracer = ""
		return false
	}
	c.tracer = c.bus.SubscribeAll(func(ev event.Event) {
		if !ev.Kind.IsSession() && !ev.Kind.IsRegistration() {
			return
		}
		c.console.Println(fmt.Sprintf("%s %s sender=%s",
			chat.FormatTime(ev.Timestamp(), c.cfg.now()), ev.EventType(), ev.Sender()))
	})
	return true
}
