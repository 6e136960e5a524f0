package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
	"git.home.luguber.info/inful/contentloader/internal/retry"
)

// DefaultQueueSize is the number of content events an Observer buffers
// while the publisher is slow or unreachable.
const DefaultQueueSize = 256

// Observer forwards content events to a Publisher from a single background
// worker, so unit dispatch never waits on the broker. Events are published
// in order with a per-attempt timeout. Retryable publish failures are
// retried under the policy; the final failure is logged and otherwise
// ignored. When the queue is full new events are dropped.
type Observer struct {
	publisher Publisher
	timeout   time.Duration
	policy    retry.Policy
	size      int
	logger    *slog.Logger

	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	queue     chan queuedEvent
	done      chan struct{}
}

type queuedEvent struct {
	ctx context.Context
	ev  loader.ContentEvent
}

var _ loader.Observer = (*Observer)(nil)

// NewObserver wraps p. A zero timeout means five seconds. The default
// policy makes a single attempt.
func NewObserver(p Publisher, timeout time.Duration, logger *slog.Logger) *Observer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = 0
	return &Observer{
		publisher: p,
		timeout:   timeout,
		policy:    policy,
		size:      DefaultQueueSize,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// WithRetry sets the retry policy and returns o. Call it before the first
// event.
func (o *Observer) WithRetry(p retry.Policy) *Observer {
	o.policy = p
	return o
}

// WithQueueSize sets how many events may wait for the publisher and
// returns o. Values below one keep the default. Call it before the first
// event.
func (o *Observer) WithQueueSize(n int) *Observer {
	if n > 0 {
		o.size = n
	}
	return o
}

func (o *Observer) start() {
	o.startOnce.Do(func() {
		o.queue = make(chan queuedEvent, o.size)
		go o.run()
	})
}

func (o *Observer) run() {
	defer close(o.done)
	for q := range o.queue {
		o.publish(q.ctx, q.ev)
	}
}

func (o *Observer) publish(ctx context.Context, ev loader.ContentEvent) {
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return o.publisher.Publish(ctx, ev)
	})
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish content event",
			logfields.Unit(ev.Unit), logfields.Event(ev.Kind), logfields.Error(err))
	}
}

// ContentChanged implements loader.Observer. It only enqueues ev.
func (o *Observer) ContentChanged(ctx context.Context, ev loader.ContentEvent) {
	o.start()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.logger.WarnContext(ctx, "Content event dropped, publisher closed",
			logfields.Unit(ev.Unit), logfields.Event(ev.Kind))
		return
	}
	select {
	case o.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		o.logger.WarnContext(ctx, "Content event dropped, publish queue full",
			logfields.Unit(ev.Unit), logfields.Event(ev.Kind), slog.Int("queue_size", o.size))
	}
}

// Close stops accepting events and waits until the queued ones have been
// published or ctx ends. It does not close the publisher.
func (o *Observer) Close(ctx context.Context) error {
	o.start()
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
