package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
)

// ErrQueueFull is returned when a message is dropped because the
// dispatch queue is full.
var ErrQueueFull = errors.New("notify: queue full")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

// Dispatcher hands messages to a Notifier on a background goroutine.
// Send never blocks: when the queue is full the message is dropped and
// counted.
type Dispatcher struct {
	next    Notifier
	timeout time.Duration
	log     logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewDispatcher(next Notifier, queueSize int, timeout time.Duration, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		next:    next,
		timeout: timeout,
		log:     log,
		queue:   make(chan Message, queueSize),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) Send(_ context.Context, msg Message) error {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		metrics.NotificationsDropped.Inc()
		d.log.Warn("notification_dropped", logger.String("kind", msg.Kind), logger.String("symbol", msg.Symbol))
		return ErrQueueFull
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Send(ctx, msg); err != nil {
			metrics.NotificationsDropped.Inc()
			d.log.Warn("notification_failed", logger.String("kind", msg.Kind), logger.String("symbol", msg.Symbol), logger.Err(err))
		}
		cancel()
	}
}

// Close stops accepting messages and waits until the queued ones are
// delivered or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
