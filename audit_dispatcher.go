package authcore

import (
	"sync/atomic"
	"time"
)

// auditDispatcher decouples audit emission from sink latency. Events
// go through a buffered channel to a single writer goroutine; when the
// buffer is full the configured policy either drops (counted) or
// blocks until the engine closes.
type auditDispatcher struct {
	sink         AuditSink
	events       chan AuditEvent
	quit         chan struct{}
	done         chan struct{}
	closeTimeout time.Duration
	dropIfFull   bool
	closed       atomic.Bool
	dropped      atomic.Uint64
}

func newAuditDispatcher(sink AuditSink, cfg AuditConfig) *auditDispatcher {
	d := &auditDispatcher{
		sink:         sink,
		events:       make(chan AuditEvent, cfg.BufferSize),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		closeTimeout: cfg.CloseTimeout,
		dropIfFull:   cfg.DropIfFull,
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.events:
			d.sink.Write(ev)
		case <-d.quit:
			// Drain whatever is already buffered, then stop.
			for {
				select {
				case ev := <-d.events:
					d.sink.Write(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) emit(ev AuditEvent) {
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	if d.dropIfFull {
		select {
		case d.events <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.events <- ev:
	case <-d.quit:
		d.dropped.Add(1)
	}
}

// close stops the writer goroutine, waiting up to closeTimeout for
// buffered events to flush.
func (d *auditDispatcher) close() {
	if d.closed.Swap(true) {
		return
	}
	close(d.quit)
	select {
	case <-d.done:
	case <-time.After(d.closeTimeout):
	}
}

func (d *auditDispatcher) droppedCount() uint64 {
	return d.dropped.Load()
}
