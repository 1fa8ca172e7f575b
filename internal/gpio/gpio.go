// Package gpio provides rotary encoder input with hardware abstraction.
// The real implementation uses Linux GPIO character device edge events.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// Encoder delivers debounced encoder events.
type Encoder interface {
	// Events returns the receive side of the bounded event queue.
	Events() <-chan logic.EncoderEvent

	// Dropped returns how many events were discarded because the queue was full.
	Dropped() uint64

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinCLK = 17
	PinDT  = 27
	PinSW  = 22
)

// QueueSize is the capacity of the event queue.
const QueueSize = 8

// Timing for edge filtering.
const (
	ClockGuard     = 2 * time.Millisecond
	SwitchDebounce = 30 * time.Millisecond
)

// Pins selects the chip and line offsets the encoder is wired to.
type Pins struct {
	Chip string
	CLK  int
	DT   int
	SW   int
}

// DefaultPins returns the standard wiring.
func DefaultPins() Pins {
	return Pins{Chip: "gpiochip0", CLK: PinCLK, DT: PinDT, SW: PinSW}
}
