package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room.
var ErrQueueFull = errors.New("mail: queue full")

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("mail: dispatcher closed")

// Dispatcher delivers messages on a background worker so request handlers
// never wait on the relay. Delivery errors are logged and dropped.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher with a queue of the given size.
func NewDispatcher(sender Sender, size int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, size),
		timeout: timeout,
		logger:  logger.With("component", "mail"),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules msg for delivery without blocking.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.Warn("email dropped: queue full", "to", msg.To, "subject", msg.Subject)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until the queue drains or ctx ends.
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

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Error("email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		} else {
			d.logger.Info("email delivered", "to", msg.To, "subject", msg.Subject)
		}
		cancel()
	}
}
