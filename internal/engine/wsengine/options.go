package wsengine

import (
	"time"

	"github.com/Iron-Ham/sipchat/internal/logging"
)

const (
	defaultDTMFRate       = 8 // digits per second
	defaultDialTimeout    = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultByeTimeout     = 2 * time.Second
	defaultRegistration   = time.Hour
	defaultEchoTailLength = 200 * time.Millisecond
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithListenAddress overrides the host:port the engine listens on. By
// default it listens on all interfaces at the account's port.
func WithListenAddress(addr string) Option {
	return func(e *Engine) {
		e.listenAddr = addr
	}
}

// WithUserAgent sets the user agent sent to peers.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// WithDTMFRate limits outgoing DTMF to perSecond digits per second.
func WithDTMFRate(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.dtmfRate = perSecond
		}
	}
}

// WithDialTimeout bounds the websocket handshake of outgoing sessions.
func WithDialTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dialTimeout = d
		}
	}
}

// WithByeTimeout bounds how long an ending session waits for the peer to
// close the connection.
func WithByeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.byeTimeout = d
		}
	}
}

// WithEchoTailLength sets the initial echo cancellation tail length.
func WithEchoTailLength(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.echoTail = d
		}
	}
}

// WithTracer receives trace lines for enabled categories. Without a tracer
// they are logged at info level.
func WithTracer(fn func(line string)) Option {
	return func(e *Engine) {
		e.tracer = fn
	}
}
