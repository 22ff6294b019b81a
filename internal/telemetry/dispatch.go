package telemetry

import "sync"

// dispatcher hands emissions from the poll goroutine to the sinks. The queue
// is unbounded so push never blocks the serial read, and a single delivery
// goroutine preserves read order.
type dispatcher struct {
	sinks Sinks

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []emission
	closed bool
	done   chan struct{}
}

func newDispatcher(sinks Sinks, sizeHint int) *dispatcher {
	d := &dispatcher{
		sinks: sinks,
		queue: make([]emission, 0, sizeHint),
		done:  make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) emit(e emission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, e)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.done)
	var batch []emission
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		batch, d.queue = d.queue, batch[:0]
		d.mu.Unlock()

		for _, e := range batch {
			d.sinks.deliver(e)
		}
	}
}

// close stops accepting emissions, delivers what is already queued and waits
// for the delivery goroutine to exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
