//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// RealEncoder is not available on non-Linux platforms.
type RealEncoder struct{}

// NewRealEncoder returns an error on non-Linux platforms.
func NewRealEncoder(pins Pins) (*RealEncoder, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Events returns nil on non-Linux platforms.
func (e *RealEncoder) Events() <-chan logic.EncoderEvent {
	return nil
}

// Dropped is always zero on non-Linux platforms.
func (e *RealEncoder) Dropped() uint64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (e *RealEncoder) Close() error {
	return nil
}
