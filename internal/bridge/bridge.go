package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/sipchat/internal/logging"
)

// Bridge is an unbounded multi-producer, single-consumer queue.
type Bridge[T any] struct {
	logger   *logging.Logger
	sentinel T

	mu     sync.Mutex
	queue  []T
	closed bool

	// wake holds at most one pending signal. Producers never block on it.
	wake chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Bridge. sentinel is what Next returns once the bridge is
// closed and drained, or when its context ends.
func New[T any](sentinel T, opts ...Option) *Bridge[T] {
	cfg := &config{
		logger: logging.NopLogger(),
		name:   "bridge",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	return &Bridge[T]{
		logger:   cfg.logger.WithComponent(cfg.name),
		sentinel: sentinel,
		wake:     make(chan struct{}, 1),
	}
}

// Publish enqueues v. It is safe to call from any goroutine and never
// blocks. After Close, v is dropped.
func (b *Bridge[T]) Publish(v T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.dropped.Add(1)
		b.logger.Debug("dropped value published after close")
		return
	}
	b.queue = append(b.queue, v)
	b.mu.Unlock()

	b.published.Add(1)
	b.signal()
}

func (b *Bridge[T]) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Next returns the oldest queued value, suspending until one is available.
// Values queued before Close are still delivered; after that Next returns
// the sentinel and false. It also returns the sentinel and false when ctx
// is done.
func (b *Bridge[T]) Next(ctx context.Context) (T, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			v := b.queue[0]
			var zero T
			b.queue[0] = zero
			b.queue = b.queue[1:]
			if len(b.queue) == 0 {
				b.queue = nil
			}
			b.mu.Unlock()
			return v, true
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return b.sentinel, false
		}

		select {
		case <-b.wake:
		case <-ctx.Done():
			return b.sentinel, false
		}
	}
}

// Close stops accepting values and releases a suspended consumer. It is safe
// to call more than once.
func (b *Bridge[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := len(b.queue)
	b.mu.Unlock()

	b.logger.Debug("bridge closed",
		"pending", pending,
		"published", b.published.Load(),
		"dropped", b.dropped.Load())
	b.signal()
}

// Closed reports whether Close has been called.
func (b *Bridge[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued values.
func (b *Bridge[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stats returns how many values were accepted and how many were dropped
// because the bridge was closed.
func (b *Bridge[T]) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}
