//go:build linux

package gpio

import (
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// RealEncoder reads the encoder from actual hardware using Linux GPIO character device.
// Edge handlers run on the library's watcher goroutines and only touch the queue.
type RealEncoder struct {
	chip  *gpiocdev.Chip
	clk   *gpiocdev.Line
	dt    *gpiocdev.Line
	sw    *gpiocdev.Line
	queue *Queue
	dec   *Decoder
}

// NewRealEncoder requests the encoder lines and starts edge detection.
func NewRealEncoder(pins Pins) (*RealEncoder, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	q := NewQueue(QueueSize)
	e := &RealEncoder{chip: chip, queue: q, dec: NewDecoder(q)}

	// DT is sampled from the CLK handler, so it must exist first.
	e.dt, err = chip.RequestLine(pins.DT, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request DT pin %d: %w", pins.DT, err)
	}

	e.clk, err = chip.RequestLine(pins.CLK,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(e.onClock))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request CLK pin %d: %w", pins.CLK, err)
	}

	e.sw, err = chip.RequestLine(pins.SW,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(SwitchDebounce),
		gpiocdev.WithEventHandler(e.onSwitch))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("request SW pin %d: %w", pins.SW, err)
	}

	return e, nil
}

func (e *RealEncoder) onClock(evt gpiocdev.LineEvent) {
	dt, err := e.dt.Value()
	if err != nil {
		log.Printf("gpio: read DT pin: %v", err)
		return
	}
	e.dec.ClockFalling(dt, time.Now())
}

func (e *RealEncoder) onSwitch(evt gpiocdev.LineEvent) {
	level := 1
	if evt.Type == gpiocdev.LineEventFallingEdge {
		level = 0
	}
	e.dec.Switch(level, time.Now())
}

// Events returns the encoder event queue.
func (e *RealEncoder) Events() <-chan logic.EncoderEvent {
	return e.queue.Events()
}

// Dropped returns how many events were discarded because the queue was full.
func (e *RealEncoder) Dropped() uint64 {
	return e.queue.Dropped()
}

// Close releases GPIO resources.
// Lines are reconfigured as plain inputs with pull-up before closing so the
// encoder is left idle.
func (e *RealEncoder) Close() error {
	var errs []error

	for _, l := range []struct {
		name string
		line *gpiocdev.Line
	}{{"CLK", e.clk}, {"SW", e.sw}, {"DT", e.dt}} {
		if l.line == nil {
			continue
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if e.chip != nil {
		if err := e.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
