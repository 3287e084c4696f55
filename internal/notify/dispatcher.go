package notify

import (
	"context"
	"log"
	"sync"
)

// Sender delivers a single alert.
type Sender interface {
	Notify(ctx context.Context, a Alert) Result
}

// Dispatcher hands alerts to a Sender from a single worker goroutine, so
// the ingest path never waits on the network and alerts go out in the order
// they were decided.
type Dispatcher struct {
	sender Sender
	queue  chan Alert
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	onDone func(Alert, Result)
}

// NewDispatcher creates a dispatcher with a bounded queue of the given size.
func NewDispatcher(sender Sender, size int) *Dispatcher {
	if size <= 0 {
		size = 16
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan Alert, size),
	}
}

// OnDone registers a callback invoked after each delivery attempt.
// Must be called before Start.
func (d *Dispatcher) OnDone(fn func(Alert, Result)) {
	d.onDone = fn
}

// Start launches the worker. It stops once Close has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for a := range d.queue {
			res := d.sender.Notify(ctx, a)
			if d.onDone != nil {
				d.onDone(a, res)
			}
		}
	}()
}

// Enqueue queues an alert without blocking. It returns false, and the alert
// is dropped, when the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(a Alert) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- a:
		return true
	default:
		log.Printf("notify: queue full, dropping %s alert", a.Action)
		return false
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
