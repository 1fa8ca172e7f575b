// Package logic contains the pure control engine for the adaptive light.
// This package has NO external dependencies (no GPIO, serial, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Reason explains why no user is currently considered present.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonAway        // subject moved beyond the reference distance
	ReasonFlat        // distance stopped varying for too long
)

func (r Reason) String() string {
	switch r {
	case ReasonAway:
		return "away"
	case ReasonFlat:
		return "flat"
	default:
		return "none"
	}
}

// SensorStatus is the read status reported by the acquisition layer.
type SensorStatus uint8

const (
	SensorOK SensorStatus = iota
	SensorNotReady
	SensorError
)

func (s SensorStatus) String() string {
	switch s {
	case SensorOK:
		return "ok"
	case SensorNotReady:
		return "not_ready"
	default:
		return "error"
	}
}

// StatusClass is the coarse fixture state shown by indicator and display consumers.
type StatusClass string

const (
	StatusFault    StatusClass = "FAULT"
	StatusBoot     StatusClass = "BOOT"
	StatusLightOff StatusClass = "LIGHT_OFF"
	StatusNoUser   StatusClass = "NO_USER"
	StatusOffset   StatusClass = "OFFSET"
	StatusAuto     StatusClass = "AUTO"
)

// EventType represents a notable engine transition.
type EventType string

const (
	EventLightOn           EventType = "LIGHT_ON"
	EventLightOff          EventType = "LIGHT_OFF"
	EventPresenceLost      EventType = "PRESENCE_LOST"
	EventPresenceRestored  EventType = "PRESENCE_RESTORED"
	EventReferenceCaptured EventType = "REFERENCE_CAPTURED"
	EventStatusChanged     EventType = "STATUS_CHANGED"
	EventFault             EventType = "FAULT"
)

// Event represents an engine transition to be published.
type Event struct {
	Timestamp     time.Time
	Type          EventType
	Reason        Reason      // PRESENCE_LOST only
	Status        StatusClass // status after the event
	OutputPercent uint8
	DistanceCm    uint32 // filtered distance that caused the event, or captured reference
}

// EncoderEventType identifies a rotary encoder input.
type EncoderEventType uint8

const (
	EncoderCW EncoderEventType = iota
	EncoderCCW
	EncoderPressed
	EncoderReleased
)

func (t EncoderEventType) String() string {
	switch t {
	case EncoderCW:
		return "cw"
	case EncoderCCW:
		return "ccw"
	case EncoderPressed:
		return "sw_pressed"
	case EncoderReleased:
		return "sw_released"
	default:
		return "unknown"
	}
}

// EncoderEvent is a single debounced encoder input.
type EncoderEvent struct {
	Type EncoderEventType
	Time time.Time
}

// Sensors supplies the latest acquisition results. Implementations must be
// time-boxed: a read that cannot complete returns SensorNotReady or SensorError.
type Sensors interface {
	ReadLight() (raw uint16, status SensorStatus)
	ReadDistance() (cm uint32, status SensorStatus)
}

// Actuator accepts the output duty cycle once per control tick.
type Actuator interface {
	SetDuty(percent uint8) error
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	LightOn          int
	LightOff         int
	PresenceLost     int
	PresenceRestored int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
