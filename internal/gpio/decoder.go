package gpio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// Queue is a bounded event channel. Push never blocks: when the queue is
// full the new event is dropped and counted.
type Queue struct {
	ch      chan logic.EncoderEvent
	dropped atomic.Uint64
}

// NewQueue creates a queue holding up to size events.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = QueueSize
	}
	return &Queue{ch: make(chan logic.EncoderEvent, size)}
}

// Push enqueues ev and reports whether it was accepted.
func (q *Queue) Push(ev logic.EncoderEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Events returns the receive side of the queue.
func (q *Queue) Events() <-chan logic.EncoderEvent {
	return q.ch
}

// Dropped returns the number of events discarded since creation.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Decoder turns raw line edges into encoder events. Edge handlers may run on
// different goroutines; the mutex keeps each decision short and atomic.
type Decoder struct {
	q *Queue

	mu        sync.Mutex
	lastClock time.Time
	pressed   bool
}

// NewDecoder creates a decoder feeding q.
func NewDecoder(q *Queue) *Decoder {
	return &Decoder{q: q}
}

// ClockFalling handles a falling edge on CLK. dtLevel is the DT line value
// sampled in the same handler: low means clockwise. Edges closer together
// than ClockGuard are contact bounce and ignored.
func (d *Decoder) ClockFalling(dtLevel int, t time.Time) {
	d.mu.Lock()
	if !d.lastClock.IsZero() && t.Sub(d.lastClock) < ClockGuard {
		d.mu.Unlock()
		return
	}
	d.lastClock = t
	d.mu.Unlock()

	typ := logic.EncoderCCW
	if dtLevel == 0 {
		typ = logic.EncoderCW
	}
	d.q.Push(logic.EncoderEvent{Type: typ, Time: t})
}

// Switch handles a debounced level change on SW. The switch is active low.
// Repeated levels are ignored so each press yields one pressed and one
// released event.
func (d *Decoder) Switch(level int, t time.Time) {
	pressed := level == 0

	d.mu.Lock()
	if pressed == d.pressed {
		d.mu.Unlock()
		return
	}
	d.pressed = pressed
	d.mu.Unlock()

	typ := logic.EncoderReleased
	if pressed {
		typ = logic.EncoderPressed
	}
	d.q.Push(logic.EncoderEvent{Type: typ, Time: t})
}
