package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/adaptive-light/internal/filter"
)

// Engine sequences filters, presence and output on fixed cadences.
// It is owned by a single goroutine; nothing in it is safe for concurrent use.
type Engine struct {
	policy Policy

	light    *filter.MovingAverage
	distance filter.Median3
	presence *Presence
	output   Output

	lightEnabled bool
	offset       int32
	fault        bool
	status       StatusClass

	lightRaw      uint16
	lightFiltered uint16
	lightStatus   SensorStatus
	distRaw       uint32
	distFiltered  uint32
	distStatus    SensorStatus

	pressAt time.Time
	pressed bool

	startTime     time.Time
	lastLight     time.Time
	lastDistance  time.Time
	lastControl   time.Time
	lastLog       time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewEngine creates an engine with the light disabled. The boot grace
// period starts at now. Out-of-range policy values are clamped.
func NewEngine(p Policy, now time.Time) *Engine {
	p = p.Clamp()
	e := &Engine{
		policy:        p,
		light:         filter.NewMovingAverage(p.LightWindow),
		presence:      NewPresence(),
		lightStatus:   SensorNotReady,
		distStatus:    SensorNotReady,
		startTime:     now,
		lastLight:     now,
		lastDistance:  now,
		lastControl:   now,
		lastLog:       now,
		lastHeartbeat: now,
	}
	e.status = e.classify(now)
	return e
}

// Step runs whatever sampling and control work is due at now and returns
// the events it produced. Call it at least once per control period.
func (e *Engine) Step(now time.Time, s Sensors) []Event {
	var events []Event

	if due(now, &e.lastLight, e.policy.LightSampleMs) {
		e.sampleLight(s)
	}
	if due(now, &e.lastDistance, e.policy.DistanceSampleMs) {
		events = append(events, e.sampleDistance(now, s)...)
	}
	if due(now, &e.lastControl, e.policy.ControlTickMs) {
		events = append(events, e.controlTick(now)...)
	}

	e.count(events)
	return events
}

// LogDue reports whether the periodic summary line should be written.
func (e *Engine) LogDue(now time.Time) bool {
	if e.policy.LogMs == 0 {
		return false
	}
	return due(now, &e.lastLog, e.policy.LogMs)
}

func (e *Engine) sampleLight(s Sensors) {
	raw, st := s.ReadLight()
	e.lightStatus = st
	if st != SensorOK {
		return
	}
	e.lightRaw = raw
	e.lightFiltered = e.light.Push(raw)
}

func (e *Engine) sampleDistance(now time.Time, s Sensors) []Event {
	cm, st := s.ReadDistance()
	e.distStatus = st
	if st != SensorOK || cm == e.policy.DistanceErrorCm {
		return nil
	}
	e.distRaw = cm
	e.distance.Push(cm)
	e.distFiltered = e.distance.Get()

	upd := e.presence.Observe(e.distFiltered, e.lightEnabled, e.policy)

	var events []Event
	if upd.ReferenceCaptured {
		ref, _ := e.presence.Reference()
		events = append(events, e.event(now, EventReferenceCaptured, ref))
	}
	if upd.Lost {
		ev := e.event(now, EventPresenceLost, e.distFiltered)
		_, ev.Reason = e.presence.Present()
		events = append(events, ev)
	}
	if upd.Restored {
		events = append(events, e.event(now, EventPresenceRestored, e.distFiltered))
	}
	return events
}

func (e *Engine) controlTick(now time.Time) []Event {
	present, _ := e.presence.Present()
	e.output.Tick(OutputInput{
		LightRaw: e.lightFiltered,
		Offset:   e.offset,
		Enabled:  e.lightEnabled,
		Present:  present,
		Fault:    e.fault,
	}, e.policy)

	st := e.classify(now)
	if st == e.status {
		return nil
	}
	e.status = st
	return []Event{e.event(now, EventStatusChanged, e.distFiltered)}
}

// ToggleLight flips the light-enable flag. Enabling re-arms reference
// capture and marks the fade-in; disabling clears presence streaks.
func (e *Engine) ToggleLight(now time.Time) []Event {
	e.lightEnabled = !e.lightEnabled

	var ev Event
	if e.lightEnabled {
		e.presence.Enable(e.policy)
		e.output.BeginFastOn()
		ev = e.event(now, EventLightOn, 0)
	} else {
		e.presence.Disable()
		e.output.EndFastOn()
		ev = e.event(now, EventLightOff, 0)
	}
	events := []Event{ev}
	e.count(events)
	return events
}

// AdjustOffset moves the manual offset by steps multiples of the configured
// offset step. It has no effect while the light is disabled.
func (e *Engine) AdjustOffset(steps int32) {
	if !e.lightEnabled {
		return
	}
	e.offset = clampI32(e.offset+steps*e.policy.OffsetStep, e.policy.OffsetMin, e.policy.OffsetMax)
}

// ResetOffset returns to fully automatic brightness.
func (e *Engine) ResetOffset() {
	e.offset = 0
}

// HandleEncoder applies one encoder input. A switch release after a press held
// for at least the long-press time resets the offset; a shorter click toggles
// the light. A release with no recorded press is ignored.
func (e *Engine) HandleEncoder(ev EncoderEvent) []Event {
	switch ev.Type {
	case EncoderCW:
		e.AdjustOffset(1)
	case EncoderCCW:
		e.AdjustOffset(-1)
	case EncoderPressed:
		e.pressAt = ev.Time
		e.pressed = true
	case EncoderReleased:
		if !e.pressed {
			return nil
		}
		e.pressed = false
		if ev.Time.Sub(e.pressAt) >= ms(e.policy.LongPressMs) {
			e.ResetOffset()
			return nil
		}
		return e.ToggleLight(ev.Time)
	}
	return nil
}

// SetFault raises or clears the fatal fault flag. While set the output is
// forced to 0 and status is FAULT. Raising it returns a FAULT event.
// Clearing it restarts the distance median so readings from before the fault
// are not mixed with new ones.
func (e *Engine) SetFault(now time.Time, fault bool) []Event {
	if fault == e.fault {
		return nil
	}
	e.fault = fault
	if !fault {
		e.distance.Reset()
		return nil
	}
	return []Event{e.event(now, EventFault, 0)}
}

// ApplyPolicy replaces the thresholds. It must be called between steps.
func (e *Engine) ApplyPolicy(p Policy) {
	p = p.Clamp()
	if p.LightWindow != e.policy.LightWindow {
		e.light = filter.NewMovingAverage(p.LightWindow)
	}
	e.policy = p
	e.offset = clampI32(e.offset, p.OffsetMin, p.OffsetMax)
}

// Policy returns the thresholds currently in effect.
func (e *Engine) Policy() Policy {
	return e.policy
}

// OutputPercent returns the duty cycle for the actuator.
func (e *Engine) OutputPercent() uint8 {
	return e.output.Percent()
}

// Presence returns the current presence decision and reason.
func (e *Engine) Presence() (bool, Reason) {
	return e.presence.Present()
}

// Status returns the status computed on the last control tick.
func (e *Engine) Status() StatusClass {
	return e.status
}

// LightEnabled reports the light-enable flag.
func (e *Engine) LightEnabled() bool {
	return e.lightEnabled
}

// Offset returns the manual offset.
func (e *Engine) Offset() int32 {
	return e.offset
}

// Fault reports whether the fatal fault flag is set.
func (e *Engine) Fault() bool {
	return e.fault
}

// EventCountsSnapshot returns the number of each event type since startup.
func (e *Engine) EventCountsSnapshot() EventCounts {
	return e.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (e *Engine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(e.lastHeartbeat) < interval {
		return nil
	}

	e.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(e.startTime),
		Counts:    e.eventCounts,
	}
}

// Diagnostics is a point-in-time view of the engine's internals.
type Diagnostics struct {
	LightRaw      uint16
	LightFiltered uint16
	LightStatus   SensorStatus
	LightReady    bool

	DistanceRaw      uint32
	DistanceFiltered uint32
	DistanceStatus   SensorStatus

	Present      bool
	Reason       Reason
	LightEnabled bool
	Offset       int32
	Fault        bool

	Output OutputSnapshot

	ReferenceCm       uint32
	ReferenceFallback bool
	ReferencePending  bool

	AwayStreakMs   uint32
	FlatStreakMs   uint32
	MotionStreakMs uint32
	NearStreakMs   uint32

	Status StatusClass
}

// Diagnostics returns the current internal state.
func (e *Engine) Diagnostics() Diagnostics {
	present, reason := e.presence.Present()
	ref, fallback := e.presence.Reference()
	away, flat, motion, near := e.presence.Streaks()
	return Diagnostics{
		LightRaw:          e.lightRaw,
		LightFiltered:     e.lightFiltered,
		LightStatus:       e.lightStatus,
		LightReady:        e.light.IsReady(),
		DistanceRaw:       e.distRaw,
		DistanceFiltered:  e.distFiltered,
		DistanceStatus:    e.distStatus,
		Present:           present,
		Reason:            reason,
		LightEnabled:      e.lightEnabled,
		Offset:            e.offset,
		Fault:             e.fault,
		Output:            e.output.Snapshot(),
		ReferenceCm:       ref,
		ReferenceFallback: fallback,
		ReferencePending:  e.presence.ReferencePending(),
		AwayStreakMs:      away,
		FlatStreakMs:      flat,
		MotionStreakMs:    motion,
		NearStreakMs:      near,
		Status:            e.status,
	}
}

// Summary formats d as a single key=value log line.
func (d Diagnostics) Summary() string {
	refSrc := "captured"
	if d.ReferenceFallback {
		refSrc = "fallback"
	}
	return fmt.Sprintf(
		"ldr_raw=%d ldr_filt=%d ldr=%s dist_raw=%d dist_filt=%d dist=%s present=%t light_on=%t offset=%d "+
			"auto=%d target=%d hyst=%d out=%d ref=%d ref_src=%s away_ms=%d flat_ms=%d motion_ms=%d near_ms=%d "+
			"reason=%s status=%s",
		d.LightRaw, d.LightFiltered, d.LightStatus, d.DistanceRaw, d.DistanceFiltered, d.DistanceStatus,
		d.Present, d.LightEnabled, d.Offset,
		d.Output.AutoPercent, d.Output.TargetPercent, d.Output.HysteresisPercent, d.Output.RampedPercent,
		d.ReferenceCm, refSrc, d.AwayStreakMs, d.FlatStreakMs, d.MotionStreakMs, d.NearStreakMs,
		d.Reason, d.Status,
	)
}

func (e *Engine) classify(now time.Time) StatusClass {
	present, _ := e.presence.Present()
	return Classify(StatusInput{
		Fault:   e.fault,
		Booting: now.Sub(e.startTime) < ms(e.policy.BootSetupMs),
		Enabled: e.lightEnabled,
		Present: present,
		Offset:  e.offset,
	})
}

func (e *Engine) event(now time.Time, typ EventType, cm uint32) Event {
	return Event{
		Timestamp:     now,
		Type:          typ,
		Status:        e.classify(now),
		OutputPercent: e.output.Percent(),
		DistanceCm:    cm,
	}
}

func (e *Engine) count(events []Event) {
	for _, ev := range events {
		switch ev.Type {
		case EventLightOn:
			e.eventCounts.LightOn++
		case EventLightOff:
			e.eventCounts.LightOff++
		case EventPresenceLost:
			e.eventCounts.PresenceLost++
		case EventPresenceRestored:
			e.eventCounts.PresenceRestored++
		}
	}
}

// due advances *last by one period when it has elapsed. If the caller has
// fallen more than a period behind, the schedule restarts from now instead
// of replaying missed periods.
func due(now time.Time, last *time.Time, periodMs uint32) bool {
	period := ms(periodMs)
	if now.Sub(*last) < period {
		return false
	}
	*last = last.Add(period)
	if now.Sub(*last) >= period {
		*last = now
	}
	return true
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}
