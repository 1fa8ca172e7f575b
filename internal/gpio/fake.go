package gpio

import (
	"time"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// FakeEncoder is a test double driven through the same decoder and queue as
// the real encoder, with edges supplied by the test.
type FakeEncoder struct {
	queue *Queue
	dec   *Decoder

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeEncoder creates a FakeEncoder with a standard-size queue.
func NewFakeEncoder() *FakeEncoder {
	q := NewQueue(QueueSize)
	return &FakeEncoder{queue: q, dec: NewDecoder(q)}
}

// Turn simulates one detent. cw selects clockwise.
func (f *FakeEncoder) Turn(cw bool, t time.Time) {
	dt := 1
	if cw {
		dt = 0
	}
	f.dec.ClockFalling(dt, t)
}

// Press simulates the switch closing.
func (f *FakeEncoder) Press(t time.Time) {
	f.dec.Switch(0, t)
}

// Release simulates the switch opening.
func (f *FakeEncoder) Release(t time.Time) {
	f.dec.Switch(1, t)
}

// Click simulates a press followed by a release after held.
func (f *FakeEncoder) Click(t time.Time, held time.Duration) {
	f.Press(t)
	f.Release(t.Add(held))
}

// Events returns the event queue.
func (f *FakeEncoder) Events() <-chan logic.EncoderEvent {
	return f.queue.Events()
}

// Dropped returns how many events were discarded.
func (f *FakeEncoder) Dropped() uint64 {
	return f.queue.Dropped()
}

// Close marks the encoder as closed.
func (f *FakeEncoder) Close() error {
	f.Closed = true
	return nil
}
