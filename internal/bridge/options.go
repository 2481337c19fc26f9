package bridge

import (
	"github.com/Iron-Ham/sipchat/internal/logging"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	logger *logging.Logger
	name   string
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithName labels the bridge in log output.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}
