package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/metrics"
)

// Dispatcher hands messages to a Sink from a fixed pool of workers.
// Dispatch never blocks the caller: when the queue is full the message is
// dropped and logged.
type Dispatcher struct {
	sink    Sink
	jobs    chan Message
	workers int
	timeout time.Duration
	log     log.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

// NewDispatcher builds a dispatcher with the given pool size, queue
// capacity and per-message delivery timeout.
func NewDispatcher(sink Sink, workers, buffer int, timeout time.Duration, logger log.FieldLogger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		jobs:    make(chan Message, buffer),
		workers: workers,
		timeout: timeout,
		log:     logger.WithField("component", "notify.dispatcher"),
	}
}

// Start launches the worker pool.  Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Dispatch queues msg for delivery and reports whether it was accepted.
func (d *Dispatcher) Dispatch(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.WithField("kind", msg.Kind).Warn("dispatcher closed; notification dropped")
		metrics.Notification(string(msg.Kind), "dropped")
		return false
	}
	select {
	case d.jobs <- msg:
		return true
	default:
		d.log.WithFields(log.Fields{"kind": msg.Kind, "numbers": msg.Numbers}).Warn("notification queue full; notification dropped")
		metrics.Notification(string(msg.Kind), "dropped")
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.Start() // drain even if Start was never called
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.jobs {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	entry := d.log.WithFields(log.Fields{"id": msg.ID, "kind": msg.Kind, "numbers": msg.Numbers})
	if err := d.sink.Send(ctx, msg); err != nil {
		entry.WithError(err).Warn("notification failed")
		metrics.Notification(string(msg.Kind), "failed")
		return
	}
	entry.Debug("notification delivered")
	metrics.Notification(string(msg.Kind), "sent")
}
