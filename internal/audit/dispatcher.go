package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// sinkTimeout bounds a single sink write so a slow backend cannot stall the queue
const sinkTimeout = 5 * time.Second

// Dispatcher hands events to a sink on a single background worker. Emit
// never blocks: when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	sink      Sink
	logger    *slog.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(sink Sink, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := d.sink.Emit(ctx, event); err != nil {
		d.logger.Error("failed to deliver audit event",
			slog.String("event_type", event.Type),
			slog.Any("error", err),
		)
	}
}

// Emit queues an event. It is safe to call after Close; the event is discarded.
func (d *Dispatcher) Emit(_ context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		if d.dropped.Add(1)%100 == 1 {
			d.logger.Warn("audit buffer full, dropping events",
				slog.String("event_type", event.Type),
				slog.Uint64("dropped_total", d.dropped.Load()),
			)
		}
	}
}

// Close stops accepting events and waits for the queue to drain
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
