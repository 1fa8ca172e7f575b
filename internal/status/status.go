// Package status provides a thread-safe status tracker for the adaptive-light daemon.
// It is written by the control loop and read by the HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/adaptive-light/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SerialPort  string
	Encoder     bool
	StepMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Policy      logic.Policy
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Engine         logic.Diagnostics
	Counts         logic.EventCounts
	Session        string
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	EncoderDropped uint64
	DutyErrors     uint64
	ParseErrors    uint64
	LastSample     time.Time
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, boot session id and config.
func NewTracker(startTime time.Time, session string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Session:   session,
			Config:    cfg,
			Engine: logic.Diagnostics{
				Status:            logic.StatusBoot,
				Present:           true,
				ReferenceFallback: true,
			},
		},
	}
}

// Update records the engine state and event counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(diag logic.Diagnostics, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Engine = diag
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetIO records link and encoder health counters.
func (t *Tracker) SetIO(lastSample time.Time, dutyErrors, encoderDropped, parseErrors uint64) {
	t.mu.Lock()
	t.snap.LastSample = lastSample
	t.snap.DutyErrors = dutyErrors
	t.snap.EncoderDropped = encoderDropped
	t.snap.ParseErrors = parseErrors
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetConfig replaces the displayed config after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
