// Package eventbus implements the bounded change event bus (spec §4.6):
// a single FIFO of ChangeEvents that merges whatever sources are active
// (the Poller while connected to Postgres, the realtime client while
// connected to Supabase) into one stream for the boundary to forward to
// listeners.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dbwatch/dbwatch/internal/model"
)

// Capacity is the bus's fixed FIFO depth. A full bus applies
// backpressure to producers rather than dropping events.
const Capacity = 1000

// Bus merges one or more producer channels into a single consumer
// channel without silently dropping events: Publish blocks while the
// bus is full, exactly like a bounded channel send would.
type Bus struct {
	log *zap.Logger

	mu     sync.Mutex
	out    chan model.ChangeEvent
	closed bool
}

func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, out: make(chan model.ChangeEvent, Capacity)}
}

// Events returns the bus's single consumer channel.
func (b *Bus) Events() <-chan model.ChangeEvent {
	return b.out
}

// Publish enqueues ev, blocking if the bus is full. If the bus has been
// closed, the send fails; it is logged as a SendFailed condition and
// discarded rather than panicking the caller (spec §4.6/§7).
func (b *Bus) Publish(ev model.ChangeEvent) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.log.Warn("publish after close", zap.String("table", ev.Schema+"."+ev.Table))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("publish on closed bus", zap.Any("recover", r))
		}
	}()
	b.out <- ev
}

// Pipe copies every event from src onto the bus until src closes. Each
// producer (the Poller's channel, the realtime client's channel) is fed
// through its own goroutine running Pipe so neither blocks the other.
func (b *Bus) Pipe(src <-chan model.ChangeEvent) {
	for ev := range src {
		b.Publish(ev)
	}
}

// Close shuts the bus down. Safe to call more than once; calls after the
// first do nothing. Further Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.out)
}
