package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher decouples flow latency from sink latency: Record enqueues,
// a single worker drains. A nil *Dispatcher is valid and silently
// discards, so callers never branch on whether auditing is enabled.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	quit       chan struct{}
	wg         sync.WaitGroup
	dropIfFull bool
	dropped    atomic.Uint64
	stopped    atomic.Bool
	stopOnce   sync.Once
}

// NewDispatcher starts the worker goroutine. buffer <= 0 gets a minimal
// queue. With dropIfFull set, Record never blocks the calling flow.
func NewDispatcher(sink Sink, buffer int, dropIfFull bool) *Dispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, buffer),
		quit:       make(chan struct{}),
		dropIfFull: dropIfFull,
	}
	d.wg.Add(1)
	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.quit:
			// Flush whatever made it into the queue before shutdown.
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

// Record stamps the event if needed and enqueues it.
func (d *Dispatcher) Record(ctx context.Context, ev Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake, flushes the queue, and waits for the worker.
// Subsequent Record calls are no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
