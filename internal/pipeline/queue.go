// Package pipeline connects the audio callback to the network sender.
package pipeline

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
)

// recordSize is one queued event: symbol byte, stream time (ns) and the
// wall clock push time (ns) for latency accounting.
const recordSize = 1 + 8 + 8

// DefaultQueueSize is the number of events the queue holds.
const DefaultQueueSize = 64

// queuedEvent is an event plus the moment it was queued.
type queuedEvent struct {
	detection.Event
	pushed time.Time
}

// EventQueue is a bounded single-producer single-consumer queue of
// detection events backed by a byte ring buffer. Push never waits for the
// consumer: when the queue is full the new event is dropped and counted.
//
// Push and pop each take the ring buffer mutex exactly once and hold it for
// a single record copy, so the producer is delayed by at most one record
// copy on the consumer side. Records are written and read whole and the
// buffer holds a whole number of records, so a write either stores the
// full record or fails with no partial data.
type EventQueue struct {
	rb       *ringbuffer.RingBuffer
	ready    chan struct{}
	space    chan struct{}
	capacity int
	dropped  atomic.Uint64
	pushed   atomic.Uint64
}

// NewEventQueue creates a queue holding up to size events.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &EventQueue{
		rb:       ringbuffer.New(size * recordSize),
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		capacity: size,
	}
}

// Push enqueues ev without blocking. It reports false when the event was
// dropped because the queue is full.
func (q *EventQueue) Push(ev detection.Event) bool {
	if !q.write(ev) {
		q.dropped.Add(1)
		return false
	}
	return true
}

// PushWait enqueues ev, waiting for the consumer to free a slot while the
// queue is full. It gives up and counts a drop once done is closed.
func (q *EventQueue) PushWait(done <-chan struct{}, ev detection.Event) bool {
	for !q.write(ev) {
		select {
		case <-q.space:
		case <-done:
			q.dropped.Add(1)
			return false
		}
	}
	return true
}

func (q *EventQueue) write(ev detection.Event) bool {
	var rec [recordSize]byte
	rec[0] = byte(ev.Symbol)
	binary.BigEndian.PutUint64(rec[1:9], uint64(ev.Time))
	binary.BigEndian.PutUint64(rec[9:], uint64(time.Now().UnixNano()))
	if _, err := q.rb.Write(rec[:]); err != nil {
		return false
	}
	q.pushed.Add(1)
	notify(q.ready)
	return true
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// pop dequeues one event. It reports false when the queue is empty.
func (q *EventQueue) pop() (queuedEvent, bool) {
	var rec [recordSize]byte
	n, err := q.rb.Read(rec[:])
	if err != nil || n != recordSize {
		return queuedEvent{}, false
	}
	notify(q.space)
	return queuedEvent{
		Event: detection.Event{
			Symbol: dtmf.Symbol(rec[0]),
			Time:   time.Duration(binary.BigEndian.Uint64(rec[1:9])),
		},
		pushed: time.Unix(0, int64(binary.BigEndian.Uint64(rec[9:]))),
	}, true
}

// Ready is signalled after a successful Push. It is coalesced, so one
// signal may stand for several events.
func (q *EventQueue) Ready() <-chan struct{} { return q.ready }

// Len returns the number of queued events.
func (q *EventQueue) Len() int { return q.rb.Length() / recordSize }

// Cap returns the queue capacity in events.
func (q *EventQueue) Cap() int { return q.capacity }

// Dropped returns the number of events rejected because the queue was full.
func (q *EventQueue) Dropped() uint64 { return q.dropped.Load() }

// Pushed returns the number of events accepted.
func (q *EventQueue) Pushed() uint64 { return q.pushed.Load() }
