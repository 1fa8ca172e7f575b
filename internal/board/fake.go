package board

import (
	"sync"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// Fake is a Link test double. Samples set on it are delivered once, like
// the real link; duty commands are recorded.
type Fake struct {
	mu       sync.Mutex
	light    latest
	distance latest

	// Duties records every SetDuty call in order.
	Duties []uint8

	// EchoTimeoutUs is the last value passed to SetEchoTimeout.
	EchoTimeoutUs uint32

	// DutyError, if set, is returned by SetDuty.
	DutyError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates an empty fake link.
func NewFake() *Fake {
	return &Fake{}
}

// SetLight queues a light sample.
func (f *Fake) SetLight(raw uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.light.set(uint32(raw))
}

// SetDistance queues a distance sample.
func (f *Fake) SetDistance(cm uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distance.set(cm)
}

// FailLight queues a light read error.
func (f *Fake) FailLight() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.light.fail()
}

// FailDistance queues a distance read error.
func (f *Fake) FailDistance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distance.fail()
}

// ReadLight implements logic.Sensors.
func (f *Fake) ReadLight() (uint16, logic.SensorStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, st := f.light.take()
	return uint16(v), st
}

// ReadDistance implements logic.Sensors.
func (f *Fake) ReadDistance() (uint32, logic.SensorStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distance.take()
}

// SetDuty records the duty cycle.
func (f *Fake) SetDuty(percent uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DutyError != nil {
		return f.DutyError
	}
	f.Duties = append(f.Duties, percent)
	return nil
}

// SetEchoTimeout records the echo timeout.
func (f *Fake) SetEchoTimeout(us uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EchoTimeoutUs = us
	return nil
}

// LastDuty returns the most recent duty cycle and whether any was set.
func (f *Fake) LastDuty() (uint8, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Duties) == 0 {
		return 0, false
	}
	return f.Duties[len(f.Duties)-1], true
}

// Close marks the link as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
