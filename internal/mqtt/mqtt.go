// Package mqtt publishes fixture events and lifecycle messages, with a fake
// for tests.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// Topic is the MQTT topic for fixture events.
const Topic = "lighting/adaptive-light/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lighting/adaptive-light/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a fixture event to the broker.
	// A failure is reported but must never stop the control loop.
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, heartbeat, reload).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RELOADED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Light LightPayload `json:"light"`
}

// LightPayload contains the fixture event details.
type LightPayload struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Status        string `json:"status"`
	OutputPercent uint8  `json:"output_percent"`
	Reason        string `json:"reason,omitempty"`
	DistanceCm    uint32 `json:"distance_cm,omitempty"`
}

// FormatPayload creates the JSON payload for a fixture event.
// The reason is only carried by PRESENCE_LOST.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Light: LightPayload{
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339),
			Event:         string(event.Type),
			Status:        string(event.Status),
			OutputPercent: event.OutputPercent,
			DistanceCm:    event.DistanceCm,
		},
	}
	if event.Type == logic.EventPresenceLost {
		payload.Light.Reason = event.Reason.String()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything. It stands in when no broker
// is configured or the client could not be created.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(logic.Event) error       { return nil }
func (discard) PublishSystem(SystemEvent) error { return nil }
func (discard) Close() error                    { return nil }
