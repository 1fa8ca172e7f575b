// Package board talks to the sensor co-processor over a serial line.
// The co-processor owns the LDR ADC, ultrasonic echo timing and LED PWM;
// this package caches the latest samples and forwards duty-cycle commands.
//
// Line protocol, newline terminated ASCII:
//
//	co-processor -> host   L,<raw>    light sample, 0..4095
//	                       D,<cm>     distance sample
//	                       E,L | E,D  read failed on that channel
//	host -> co-processor   P,<pct>    LED duty cycle, 0..100
//	                       T,<us>     ultrasonic echo timeout
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// Link is a connection to the co-processor.
type Link interface {
	logic.Sensors
	logic.Actuator

	// SetEchoTimeout bounds how long the co-processor waits for an echo.
	SetEchoTimeout(us uint32) error

	// Close releases the connection.
	Close() error
}

// Kind identifies a co-processor message.
type Kind byte

const (
	KindLight    Kind = 'L'
	KindDistance Kind = 'D'
	KindError    Kind = 'E'
)

// MaxLightRaw is the full-scale light reading.
const MaxLightRaw = logic.LightFullScale

// Message is one parsed line from the co-processor.
type Message struct {
	Kind    Kind
	Channel Kind   // KindError only: the channel that failed
	Value   uint32 // KindLight and KindDistance only
}

// ParseLine parses a single line from the co-processor.
func ParseLine(line string) (Message, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 2 {
		return Message{}, fmt.Errorf("invalid line format: expected 2 comma-separated values, got %d", len(parts))
	}
	if len(parts[0]) != 1 {
		return Message{}, fmt.Errorf("invalid message kind %q", parts[0])
	}

	switch kind := Kind(parts[0][0]); kind {
	case KindLight:
		v, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return Message{}, fmt.Errorf("invalid light reading: %w", err)
		}
		if v > MaxLightRaw {
			return Message{}, fmt.Errorf("light reading out of range: %d (max %d)", v, MaxLightRaw)
		}
		return Message{Kind: kind, Value: uint32(v)}, nil

	case KindDistance:
		v, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Message{}, fmt.Errorf("invalid distance: %w", err)
		}
		return Message{Kind: kind, Value: uint32(v)}, nil

	case KindError:
		if len(parts[1]) != 1 {
			return Message{}, fmt.Errorf("invalid error channel %q", parts[1])
		}
		ch := Kind(parts[1][0])
		if ch != KindLight && ch != KindDistance {
			return Message{}, fmt.Errorf("invalid error channel %q", parts[1])
		}
		return Message{Kind: kind, Channel: ch}, nil

	default:
		return Message{}, fmt.Errorf("invalid message kind %q", parts[0])
	}
}

// FormatDuty builds the duty-cycle command.
func FormatDuty(percent uint8) string {
	if percent > 100 {
		percent = 100
	}
	return fmt.Sprintf("P,%d\n", percent)
}

// FormatEchoTimeout builds the echo-timeout command.
func FormatEchoTimeout(us uint32) string {
	return fmt.Sprintf("T,%d\n", us)
}

// latest holds the most recent result for one channel. fresh is cleared when
// the engine consumes it, so each co-processor sample is delivered once.
type latest struct {
	value  uint32
	status logic.SensorStatus
	fresh  bool
}

func (l *latest) set(value uint32) {
	l.value = value
	l.status = logic.SensorOK
	l.fresh = true
}

func (l *latest) fail() {
	l.status = logic.SensorError
	l.fresh = true
}

func (l *latest) take() (uint32, logic.SensorStatus) {
	if !l.fresh {
		return l.value, logic.SensorNotReady
	}
	l.fresh = false
	return l.value, l.status
}
