package coordinator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Iron-Ham/sipchat/internal/chat"
	"github.com/Iron-Ham/sipchat/internal/command"
	"github.com/Iron-Ham/sipchat/internal/engine"
	"github.com/Iron-Ham/sipchat/internal/errors"
)

// Single-key shortcuts.
const (
	KeySwitch     rune = 0x0e // Ctrl-N
	KeyNumpad     rune = 0x00 // Ctrl-Space
	KeyToggleHold rune = 0x08 // Ctrl-H
)

// CommandPrefix starts a command line.
const CommandPrefix = ":"

const (
	dtmfDigits   = "0123456789*#ABCD"
	echoStep     = 10 * time.Millisecond
	echoMaxTail  = 500 * time.Millisecond
	traceNotices = "notifications"
)

var traceCategories = []string{"sip", "msrp", "engine", traceNotices}

func (c *Coordinator) commands() []command.Command {
	return []command.Command{
		{
			Name:        "call",
			Usage:       ":call user@domain [+]chat",
			Description: `Initiate an outgoing session. By default, use audio. The second argument specifies whether to propose chat only ("chat") or audio+chat ("+chat")`,
			MinArgs:     1,
			MaxArgs:     command.Unlimited,
			Run:         c.cmdCall,
		},
		{Name: "hold", Usage: ":hold  (or CTRL-H)", Description: "Put the current session on hold", Run: c.cmdHold},
		{Name: "unhold", Usage: ":unhold  (or CTRL-H)", Description: "Un-hold the current session", Run: c.cmdUnhold},
		{Name: "add", Usage: ":add audio|chat", Description: "Add a new stream to the current session", MinArgs: 1, MaxArgs: 1, Run: c.cmdAdd},
		{Name: "remove", Usage: ":remove audio|chat", Description: "Remove the stream from the current session", MinArgs: 1, MaxArgs: 1, Run: c.cmdRemove},
		{Name: "dtmf", Usage: ":dtmf DIGITS", Description: "Send DTMF digits. Also try CTRL-SPACE for virtual numpad", MinArgs: 1, MaxArgs: command.Unlimited, Run: c.cmdDTMF},
		{Name: "trace", Usage: ":trace " + strings.Join(traceCategories, "|"), Description: "Toggle the debug messages of given category", MinArgs: 1, MaxArgs: command.Unlimited, Run: c.cmdTrace},
		{Name: "echo", Usage: ":echo +|-|MILLISECONDS", Description: "Adjust echo cancellation", MaxArgs: 1, Run: c.cmdEcho},
		{Name: "record", Usage: ":record", Description: "Toggle audio recording", Run: c.cmdRecord},
		{Name: "switch", Usage: ":switch  (or CTRL-N)", Description: "Switch between active sessions", Run: c.cmdSwitch},
		{Name: "help", Usage: ":help", Description: "Print this help message", Run: c.cmdHelp},
	}
}

// parseCommand splits a command line into its token and arguments. Lines
// whose token does not start with a letter, like ":)", are not commands.
func parseCommand(line string) (string, []string, bool) {
	if !strings.HasPrefix(line, CommandPrefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, CommandPrefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	first := []rune(fields[0])[0]
	if !unicode.IsLetter(first) {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

func (c *Coordinator) handleLine(line string) {
	if token, args, ok := parseCommand(line); ok {
		c.report(c.dispatcher.Dispatch(token, args))
		return
	}
	if line == "" {
		return
	}
	c.report(c.sendMessage(line))
}

func (c *Coordinator) handleKey(key rune) {
	if c.numpad != nil {
		c.numpadKey(key)
		return
	}
	switch key {
	case KeySwitch:
		c.report(c.cmdSwitch(nil))
	case KeyNumpad:
		c.report(c.enterNumpad())
	case KeyToggleHold:
		c.report(c.toggleHold())
	default:
		c.logger.Debug("ignoring key", "key", fmt.Sprintf("%q", key))
	}
}

// handleEOF ends the current session, or quits when there is none.
func (c *Coordinator) handleEOF() {
	cs, ok := c.registry.Current()
	if !ok {
		c.quit = true
		return
	}
	c.logger.Info("closing current session", "session_id", string(cs.ID()))
	c.registry.Remove(cs)
	cs.MarkEnding()
	c.updatePrompt()
	c.report(c.engine.End(cs.ID()))
}

func (c *Coordinator) sendMessage(text string) error {
	cs, err := c.current(fmt.Sprintf("Cannot send message %q", text))
	if err != nil {
		return err
	}

	if err := c.engine.SendMessage(cs.ID(), text); err != nil {
		if errors.Is(err, errors.ErrConnectionClosed) {
			c.drop(cs)
			c.updatePrompt()
			return errors.NewUserCommandError("Cannot send message", err)
		}
		return err
	}

	now := c.cfg.now()
	line := chat.FormatMessage(now, now, cs.Info().Local.Format(), text)
	c.console.Println(line)
	if err := cs.Log(line); err != nil {
		c.logger.Warn("failed to write transcript", "session_id", string(cs.ID()), "error", err)
	}
	return nil
}

func (c *Coordinator) cmdCall(args []string) error {
	target, tokens := args[0], args[1:]

	uri, err := engine.ParseURI(target, c.account.URI.Host)
	if err != nil {
		return errors.NewUserCommandError(err.Error(), nil).WithSentinel(errors.ErrInvalidInput)
	}

	var streams []engine.StreamKind
	if len(tokens) == 0 || strings.HasPrefix(tokens[0], "+") {
		streams = append(streams, engine.StreamAudio)
	}
	for _, tok := range tokens {
		kind, _, err := command.ResolveStream(tok)
		if err != nil {
			return err
		}
		if !engine.HasStream(streams, kind) {
			streams = append(streams, kind)
		}
	}

	info, err := c.engine.Connect(uri, streams)
	if err != nil {
		if errors.IsFatal(err) {
			return err
		}
		return errors.NewUserCommandError("Cannot call "+uri.String(), err)
	}
	c.logger.Info("outgoing session", "session_id", string(info.ID), "remote", uri.String())
	c.register(chat.New(info))
	return nil
}

func (c *Coordinator) cmdHold([]string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	if err := c.engine.Hold(cs.ID()); err != nil {
		return err
	}
	cs.SetHoldIntent(true)
	return nil
}

func (c *Coordinator) cmdUnhold([]string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	if err := c.engine.Unhold(cs.ID()); err != nil {
		return err
	}
	cs.SetHoldIntent(false)
	return nil
}

func (c *Coordinator) toggleHold() error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	if cs.HoldIntent() {
		return c.cmdUnhold(nil)
	}
	return c.cmdHold(nil)
}

func (c *Coordinator) cmdAdd(args []string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	kind, _, err := command.ResolveStream(args[0])
	if err != nil {
		return err
	}
	return c.engine.AddStream(cs.ID(), kind)
}

func (c *Coordinator) cmdRemove(args []string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	kind, _, err := command.ResolveStream(args[0])
	if err != nil {
		return err
	}
	return c.engine.RemoveStream(cs.ID(), kind)
}

func (c *Coordinator) cmdDTMF(args []string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	digits := strings.ToUpper(strings.Join(args, ""))
	for _, d := range digits {
		if !strings.ContainsRune(dtmfDigits, d) {
			return errors.UserErrorf("Invalid DTMF digit: %q", d).WithSentinel(errors.ErrInvalidDigit)
		}
	}
	for _, d := range digits {
		if err := c.engine.SendDTMF(cs.ID(), d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) cmdTrace(args []string) error {
	categories := make([]string, 0, len(args))
	for _, arg := range args {
		category, err := command.Resolve(arg, traceCategories)
		if err != nil {
			return err
		}
		categories = append(categories, category)
	}

	for _, category := range categories {
		var on bool
		if category == traceNotices {
			on = c.setNotificationTrace(c.tracer == "")
		} else {
			var err error
			if on, err = c.engine.ToggleTrace(category); err != nil {
				return err
			}
		}
		state := "deactivated"
		if on {
			state = "activated"
		}
		c.console.Println(fmt.Sprintf("%s tracing to console is now %s", traceLabel(category), state))
	}
	return nil
}

func traceLabel(category string) string {
	switch category {
	case "sip", "msrp":
		return strings.ToUpper(category)
	default:
		return strings.ToUpper(category[:1]) + category[1:]
	}
}

func (c *Coordinator) cmdEcho(args []string) error {
	if len(args) == 0 {
		c.console.Println(fmt.Sprintf("Current echo cancellation: %d ms", c.engine.EchoTailLength().Milliseconds()))
		return nil
	}

	param := args[0]
	var delta time.Duration
	if ms, err := strconv.ParseFloat(param, 64); err == nil {
		delta = time.Duration(ms * float64(time.Millisecond))
	} else {
		switch param {
		case "+":
			delta = echoStep
		case "-":
			delta = -echoStep
		default:
			return errors.UserErrorf("Cannot understand %q", param).WithUsage(":echo +|-|MILLISECONDS")
		}
	}

	tail := delta
	if strings.HasPrefix(param, "+") || strings.HasPrefix(param, "-") {
		tail = c.engine.EchoTailLength() + delta
	}
	tail = min(echoMaxTail, max(0, tail))

	if err := c.engine.SetEchoTailLength(tail); err != nil {
		return err
	}
	c.console.Println(fmt.Sprintf("Set echo cancellation tail length to %d ms", c.engine.EchoTailLength().Milliseconds()))
	return nil
}

func (c *Coordinator) cmdRecord([]string) error {
	cs, err := c.current("")
	if err != nil {
		return err
	}
	if cs.Recording() == "" {
		err = c.engine.StartRecording(cs.ID())
	} else {
		err = c.engine.StopRecording(cs.ID())
	}
	if errors.Is(err, errors.ErrNotSupported) {
		return errors.NewUserCommandError("Cannot record", err)
	}
	return err
}

func (c *Coordinator) cmdSwitch([]string) error {
	if err := c.registry.Rotate(); err != nil {
		return errors.UserErrorf("There's no other session to switch to.").WithSentinel(err)
	}
	c.updatePrompt()
	return nil
}

func (c *Coordinator) cmdHelp([]string) error {
	c.console.Println(c.dispatcher.Help())
	return nil
}
