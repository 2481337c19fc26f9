package coordinator

import (
	"time"

	"github.com/Iron-Ham/sipchat/internal/history"
	"github.com/Iron-Ham/sipchat/internal/logging"
)

const (
	defaultSessionTimeout    = 3 * time.Second
	defaultUnregisterTimeout = time.Second
	defaultCalmingDelay      = time.Second
)

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	logger             *logging.Logger
	history            *history.Store
	sessionTimeout     time.Duration
	unregisterTimeout  time.Duration
	calmingDelay       time.Duration
	traceNotifications bool
	initialCall        []string
	now                func() time.Time
}

// WithLogger sets the logger for the coordinator.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHistory enables chat transcripts.
func WithHistory(store *history.Store) Option {
	return func(c *config) {
		c.history = store
	}
}

// WithShutdownTimeouts bounds how long shutdown waits for sessions to end
// and for accounts to unregister. Zero or negative values keep the defaults
// (3s and 1s).
func WithShutdownTimeouts(sessions, unregister time.Duration) Option {
	return func(c *config) {
		if sessions > 0 {
			c.sessionTimeout = sessions
		}
		if unregister > 0 {
			c.unregisterTimeout = unregister
		}
	}
}

// WithCalmingDelay sets how long a shutdown phase may take before a
// progress message is printed.
func WithCalmingDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.calmingDelay = d
		}
	}
}

// WithTraceNotifications prints every session and registration event.
func WithTraceNotifications(enabled bool) Option {
	return func(c *config) {
		c.traceNotifications = enabled
	}
}

// WithInitialCall places a call when Run starts, with the same arguments
// as the :call command.
func WithInitialCall(args []string) Option {
	return func(c *config) {
		c.initialCall = args
	}
}

// WithClock overrides the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
