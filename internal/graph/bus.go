package graph

import (
	"sync"
	"time"
)

// DefaultBusCapacity bounds the per-run event buffer.
const DefaultBusCapacity = 256

// Bus is a bounded FIFO event buffer, private to one run. Publishing never
// blocks: when the buffer is full the oldest unconsumed event is dropped so
// a slow consumer cannot stall the run.
type Bus struct {
	mu      sync.Mutex
	events  chan Event
	nextID  uint64
	dropped uint64
	closed  bool
	now     func() time.Time
}

// NewBus creates a bus with the given capacity (DefaultBusCapacity if <= 0).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{events: make(chan Event, capacity), now: time.Now}
}

// Publish stamps the event with the next monotonic id and a timestamp, then
// enqueues it. Full buffer drops the oldest event.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.nextID++
	e.ID = b.nextID
	e.Timestamp = b.now()

	for {
		select {
		case b.events <- e:
			return
		default:
		}
		select {
		case <-b.events:
			b.dropped++
		default:
		}
	}
}

// Events is the consumer side. The channel closes after Close.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Dropped reports how many events were discarded due to backpressure.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close ends the stream. Further publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}
