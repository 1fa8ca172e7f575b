package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Session       string       `json:"session"`
	State         string       `json:"state"`
	Fault         bool         `json:"fault"`
	Light         LightJSON    `json:"light"`
	Presence      PresenceJSON `json:"presence"`
	Sensors       SensorsJSON  `json:"sensors"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	IO            IOJSON       `json:"io"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LightJSON reports the output path from auto level to ramped duty.
type LightJSON struct {
	Enabled       bool  `json:"enabled"`
	Offset        int32 `json:"offset"`
	AutoPercent   uint8 `json:"auto_percent"`
	TargetPercent uint8 `json:"target_percent"`
	OutputPercent uint8 `json:"output_percent"`
}

// PresenceJSON reports the presence state machine.
type PresenceJSON struct {
	Present         bool   `json:"present"`
	Reason          string `json:"reason"`
	ReferenceCm     uint32 `json:"reference_cm"`
	ReferenceSource string `json:"reference_source"`
}

// SensorsJSON reports the latest raw and filtered sensor values.
type SensorsJSON struct {
	LightRaw         uint16 `json:"light_raw"`
	LightFiltered    uint16 `json:"light_filtered"`
	LightStatus      string `json:"light_status"`
	DistanceCm       uint32 `json:"distance_cm"`
	DistanceFiltered uint32 `json:"distance_filtered_cm"`
	DistanceStatus   string `json:"distance_status"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	LightOn          int `json:"light_on"`
	LightOff         int `json:"light_off"`
	PresenceLost     int `json:"presence_lost"`
	PresenceRestored int `json:"presence_restored"`
}

// IOJSON reports link and encoder health.
type IOJSON struct {
	LastSample     string `json:"last_sample,omitempty"`
	DutyErrors     uint64 `json:"duty_errors"`
	EncoderDropped uint64 `json:"encoder_dropped"`
	ParseErrors    uint64 `json:"parse_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SerialPort      string `json:"serial_port"`
	Encoder         bool   `json:"encoder"`
	StepMs          int64  `json:"step_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	AwayTimeoutMs   uint32 `json:"away_timeout_ms"`
	StaleTimeoutMs  uint32 `json:"stale_timeout_ms"`
	AwayModeEnabled bool   `json:"away_mode_enabled"`
	FlatModeEnabled bool   `json:"flat_mode_enabled"`
	OffsetStep      int32  `json:"offset_step"`
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Engine

	state := string(d.Status)
	if state == "" {
		state = "UNKNOWN"
	}
	refSource := "captured"
	if d.ReferenceFallback {
		refSource = "fallback"
	}

	inner := StatusInner{
		Session: snap.Session,
		State:   state,
		Fault:   d.Fault,
		Light: LightJSON{
			Enabled:       d.LightEnabled,
			Offset:        d.Offset,
			AutoPercent:   d.Output.AutoPercent,
			TargetPercent: d.Output.TargetPercent,
			OutputPercent: d.Output.RampedPercent,
		},
		Presence: PresenceJSON{
			Present:         d.Present,
			Reason:          d.Reason.String(),
			ReferenceCm:     d.ReferenceCm,
			ReferenceSource: refSource,
		},
		Sensors: SensorsJSON{
			LightRaw:         d.LightRaw,
			LightFiltered:    d.LightFiltered,
			LightStatus:      d.LightStatus.String(),
			DistanceCm:       d.DistanceRaw,
			DistanceFiltered: d.DistanceFiltered,
			DistanceStatus:   d.DistanceStatus.String(),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			LightOn:          snap.Counts.LightOn,
			LightOff:         snap.Counts.LightOff,
			PresenceLost:     snap.Counts.PresenceLost,
			PresenceRestored: snap.Counts.PresenceRestored,
		},
		IO: IOJSON{
			DutyErrors:     snap.DutyErrors,
			EncoderDropped: snap.EncoderDropped,
			ParseErrors:    snap.ParseErrors,
		},
		Config: ConfigJSON{
			SerialPort:      snap.Config.SerialPort,
			Encoder:         snap.Config.Encoder,
			StepMs:          snap.Config.StepMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			AwayTimeoutMs:   snap.Config.Policy.AwayTimeoutMs,
			StaleTimeoutMs:  snap.Config.Policy.StaleTimeoutMs,
			AwayModeEnabled: snap.Config.Policy.AwayModeEnabled,
			FlatModeEnabled: snap.Config.Policy.FlatModeEnabled,
			OffsetStep:      snap.Config.Policy.OffsetStep,
		},
	}
	if !snap.LastSample.IsZero() {
		inner.IO.LastSample = snap.LastSample.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
