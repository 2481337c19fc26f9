// Package console is the interactive terminal: a one-line bubbletea
// program showing the status prompt, the line editor and pending questions.
// Output printed through the console scrolls above the prompt.
package console

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/sipchat/internal/errors"
	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

// Option configures a Console.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	promptColor string
	input       io.Reader
	output      io.Writer
}

// WithLogger sets the console's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPromptColor colours the prompt with a lipgloss color ("12", "#5f87ff").
func WithPromptColor(color string) Option {
	return func(o *options) { o.promptColor = color }
}

// WithIO replaces the terminal with in and out.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.input = in
		o.output = out
	}
}

// Console runs the terminal program. Its methods are safe to call from any
// goroutine once Run has been called.
type Console struct {
	program *tea.Program
	logger  *logging.Logger
	done    chan struct{}
}

// New creates a Console that publishes input to inbox.
func New(inbox event.Publisher, opts ...Option) *Console {
	o := &options{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	var progOpts []tea.ProgramOption
	if o.input != nil {
		progOpts = append(progOpts, tea.WithInput(o.input))
	}
	if o.output != nil {
		progOpts = append(progOpts, tea.WithOutput(o.output))
	}

	return &Console{
		program: tea.NewProgram(NewModel(inbox, o.promptColor), progOpts...),
		logger:  o.logger.WithComponent("console"),
		done:    make(chan struct{}),
	}
}

// Run runs the terminal until Quit is called or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	defer close(c.done)
	stop := context.AfterFunc(ctx, c.program.Quit)
	defer stop()

	if _, err := c.program.Run(); err != nil {
		return errors.Wrap(err, "console")
	}
	c.logger.Debug("console stopped")
	return nil
}

// Quit stops the terminal program.
func (c *Console) Quit() {
	c.program.Quit()
}

// SetPrompt replaces the status prompt.
func (c *Console) SetPrompt(prompt string) {
	c.program.Send(promptMsg(prompt))
}

// Println prints line above the prompt.
func (c *Console) Println(line string) {
	c.program.Send(printMsg(line))
}

// SetKeyMode switches between line editing and per-key input.
func (c *Console) SetKeyMode(on bool) {
	c.program.Send(keyModeMsg(on))
}

// Ask shows text and waits for one of answers. If ctx ends first the
// question is removed without printing anything.
func (c *Console) Ask(ctx context.Context, text string, answers []rune) (rune, error) {
	q := &question{text: text, answers: answers, reply: make(chan rune, 1)}
	c.program.Send(askMsg{q: q})

	select {
	case r := <-q.reply:
		return r, nil
	case <-ctx.Done():
		c.program.Send(withdrawMsg{q: q})
		// The answer may have raced the withdrawal.
		select {
		case r := <-q.reply:
			return r, nil
		default:
		}
		return 0, ctx.Err()
	case <-c.done:
		return 0, errors.ErrConsoleClosed
	}
}
