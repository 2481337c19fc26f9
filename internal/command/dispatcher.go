// Package command resolves abbreviated console commands and runs them.
//
// Commands are looked up in a static table by exact name or by a unique
// prefix, so ":sw" runs "switch" and ":h" is rejected as ambiguous between
// "help" and "hold". Stream tokens ("c", "+audio") go through the same
// resolution, case-insensitively.
package command

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/sipchat/internal/errors"
)

// Unlimited is the MaxArgs value of a command with no upper bound.
const Unlimited = -1

// Func runs a command with its arguments.
type Func func(args []string) error

// Command is one entry of the command table.
type Command struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
	Run         Func
}

func (c *Command) checkArgs(args []string) error {
	if len(args) < c.MinArgs || (c.MaxArgs != Unlimited && len(args) > c.MaxArgs) {
		return errors.NewUserCommandError("Invalid number of arguments", nil).
			WithSentinel(errors.ErrInvalidArgumentCount).
			WithUsage(c.Usage)
	}
	return nil
}

// Dispatcher holds the command table.
type Dispatcher struct {
	commands map[string]*Command
	names    []string
}

// New creates a Dispatcher with the given commands registered in order.
func New(cmds ...Command) *Dispatcher {
	d := &Dispatcher{commands: make(map[string]*Command)}
	for _, c := range cmds {
		d.Register(c)
	}
	return d
}

// Register adds or replaces a command.
func (d *Dispatcher) Register(c Command) {
	if _, ok := d.commands[c.Name]; !ok {
		d.names = append(d.names, c.Name)
	}
	cmd := c
	d.commands[c.Name] = &cmd
}

// Names returns the canonical command names in registration order.
func (d *Dispatcher) Names() []string {
	return append([]string(nil), d.names...)
}

// Lookup resolves token against the command names. Matching is
// case-sensitive.
func (d *Dispatcher) Lookup(token string) (*Command, error) {
	name, err := Resolve(token, d.names)
	if err != nil {
		return nil, err
	}
	return d.commands[name], nil
}

// Dispatch resolves token, checks the argument count and runs the command.
// Resolution and argument errors are user-facing.
func (d *Dispatcher) Dispatch(token string, args []string) error {
	cmd, err := d.Lookup(token)
	if err != nil {
		return err
	}
	if err := cmd.checkArgs(args); err != nil {
		return err
	}
	return cmd.Run(args)
}

// Help renders the usage table, one command per line, with descriptions
// aligned in a column.
func (d *Dispatcher) Help() string {
	width := 0
	for _, name := range d.names {
		width = max(width, len(d.commands[name].Usage))
	}
	width += 3

	var b strings.Builder
	for i, name := range d.names {
		c := d.commands[name]
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-*s%s", width, c.Usage, c.Description)
	}
	return b.String()
}
