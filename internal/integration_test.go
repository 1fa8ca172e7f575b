package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/adaptive-light/internal/board"
	"github.com/sweeney/adaptive-light/internal/gpio"
	"github.com/sweeney/adaptive-light/internal/logic"
	"github.com/sweeney/adaptive-light/internal/mqtt"
	"github.com/sweeney/adaptive-light/internal/status"
)

var rigStart = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

// rig wires the engine to the board, encoder, publisher and tracker fakes the
// same way the daemon loop does, stepping every 10ms.
type rig struct {
	board   *board.Fake
	enc     *gpio.FakeEncoder
	engine  *logic.Engine
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	now     time.Time

	lastDuty uint8
	dutySent bool
}

func newRig(p logic.Policy) *rig {
	return &rig{
		board:   board.NewFake(),
		enc:     gpio.NewFakeEncoder(),
		engine:  logic.NewEngine(p, rigStart),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(rigStart, "integration", status.Config{SerialPort: "/dev/ttyAMA0", Policy: p}),
		now:     rigStart,
	}
}

// run advances d with the co-processor streaming light raw and distance cm.
func (r *rig) run(d time.Duration, light uint16, cm uint32) {
	for end := r.now.Add(d); r.now.Before(end); {
		r.now = r.now.Add(10 * time.Millisecond)
		r.board.SetLight(light)
		r.board.SetDistance(cm)
		r.step()
	}
}

func (r *rig) step() {
	var events []logic.Event
	for drained := false; !drained; {
		select {
		case ev := <-r.enc.Events():
			events = append(events, r.engine.HandleEncoder(ev)...)
		default:
			drained = true
		}
	}
	events = append(events, r.engine.Step(r.now, r.board)...)

	if duty := r.engine.OutputPercent(); !r.dutySent || duty != r.lastDuty {
		if err := r.board.SetDuty(duty); err == nil {
			r.lastDuty, r.dutySent = duty, true
		}
	}

	for _, ev := range events {
		// Publish failures are tolerated, as in the daemon.
		_ = r.pub.Publish(ev)
	}
	r.tracker.Update(r.engine.Diagnostics(), r.engine.EventCountsSnapshot())
}

func (r *rig) click() {
	r.enc.Click(r.now, 100*time.Millisecond)
}

func (r *rig) types() []logic.EventType {
	return r.pub.EventTypes()
}

func equalTypes(a, b []logic.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func awayPolicy() logic.Policy {
	p := logic.DefaultPolicy()
	p.AwayTimeoutMs = 3000
	p.FlatModeEnabled = false
	return p
}

// TestIntegrationFullFlow boots, turns the light on, walks away, comes back
// and turns the light off.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(awayPolicy())
	auto := logic.AutoPercent(1000)

	r.run(1500*time.Millisecond, 1000, 60)
	if got := r.types(); !equalTypes(got, []logic.EventType{logic.EventStatusChanged}) {
		t.Fatalf("after boot: got %v, want [STATUS_CHANGED]", got)
	}
	if r.pub.Events[0].Status != logic.StatusLightOff {
		t.Errorf("boot exit status: got %s, want LIGHT_OFF", r.pub.Events[0].Status)
	}
	if d, _ := r.board.LastDuty(); d != 0 {
		t.Errorf("duty while off: got %d, want 0", d)
	}

	r.click()
	r.run(5*time.Second, 1000, 60)
	if d, _ := r.board.LastDuty(); d != auto {
		t.Errorf("duty after fade-in: got %d, want %d", d, auto)
	}
	if ref := r.tracker.Snapshot().Engine.ReferenceCm; ref != 60 {
		t.Errorf("reference: got %d, want 60", ref)
	}

	r.run(6*time.Second, 1000, 200)
	if present, reason := r.engine.Presence(); present || reason != logic.ReasonAway {
		t.Fatalf("after walking away: present=%t reason=%s, want away", present, reason)
	}
	if d, _ := r.board.LastDuty(); d != 0 {
		t.Errorf("duty while away: got %d, want 0", d)
	}

	r.run(8*time.Second, 1000, 60)
	if present, _ := r.engine.Presence(); !present {
		t.Fatal("expected presence restored after returning")
	}
	if d, _ := r.board.LastDuty(); d != auto {
		t.Errorf("duty after return: got %d, want %d", d, auto)
	}

	r.click()
	r.run(2500*time.Millisecond, 1000, 60)

	want := []logic.EventType{
		logic.EventStatusChanged, // BOOT -> LIGHT_OFF
		logic.EventLightOn,
		logic.EventStatusChanged, // AUTO
		logic.EventReferenceCaptured,
		logic.EventPresenceLost,
		logic.EventStatusChanged, // NO_USER
		logic.EventPresenceRestored,
		logic.EventStatusChanged, // AUTO
		logic.EventLightOff,
		logic.EventStatusChanged, // LIGHT_OFF
	}
	if got := r.types(); !equalTypes(got, want) {
		t.Fatalf("events:\n got %v\nwant %v", got, want)
	}
	if r.pub.Events[4].Reason != logic.ReasonAway {
		t.Errorf("PRESENCE_LOST reason: got %s, want away", r.pub.Events[4].Reason)
	}
	if d, _ := r.board.LastDuty(); d != 0 {
		t.Errorf("duty after switching off: got %d, want 0", d)
	}

	counts := r.engine.EventCountsSnapshot()
	wantCounts := logic.EventCounts{LightOn: 1, LightOff: 1, PresenceLost: 1, PresenceRestored: 1}
	if counts != wantCounts {
		t.Errorf("counts: got %+v, want %+v", counts, wantCounts)
	}
}

func TestIntegrationNoEventsDuringBoot(t *testing.T) {
	r := newRig(logic.DefaultPolicy())
	r.run(900*time.Millisecond, 1000, 60)

	if len(r.pub.Events) != 0 {
		t.Errorf("expected no events during boot, got %v", r.types())
	}
	if st := r.tracker.Snapshot().Engine.Status; st != logic.StatusBoot {
		t.Errorf("status: got %s, want BOOT", st)
	}
}

func TestIntegrationStaleUserAndMotionRecovery(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	p.AwayModeEnabled = false
	p.StaleTimeoutMs = 10000
	r := newRig(p)

	r.click()
	r.run(11*time.Second, 2000, 60)
	if present, reason := r.engine.Presence(); present || reason != logic.ReasonFlat {
		t.Fatalf("after a still reading: present=%t reason=%s, want flat", present, reason)
	}

	r.run(500*time.Millisecond, 2000, 70)
	if present, _ := r.engine.Presence(); !present {
		t.Fatal("expected motion to restore presence")
	}

	lost := -1
	for i, ev := range r.pub.Events {
		if ev.Type == logic.EventPresenceLost {
			lost = i
		}
	}
	if lost < 0 {
		t.Fatal("no PRESENCE_LOST published")
	}

	var payload mqtt.Payload
	if err := json.Unmarshal(r.pub.Payloads[lost], &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Light.Reason != "flat" {
		t.Errorf("payload reason: got %q, want flat", payload.Light.Reason)
	}
	if payload.Light.Event != "PRESENCE_LOST" {
		t.Errorf("payload event: got %q", payload.Light.Event)
	}
}

func TestIntegrationEncoderOffset(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	// Turning while off has no effect.
	r.enc.Turn(true, r.now)
	r.run(100*time.Millisecond, 2048, 60)
	if r.engine.Offset() != 0 {
		t.Fatalf("offset while off: got %d, want 0", r.engine.Offset())
	}

	r.click()
	r.run(100*time.Millisecond, 2048, 60)
	for i := 0; i < 3; i++ {
		r.enc.Turn(false, r.now.Add(time.Duration(i)*5*time.Millisecond))
	}
	r.run(3*time.Second, 2048, 60)

	snap := r.tracker.Snapshot()
	if snap.Engine.Offset != -15 {
		t.Errorf("offset: got %d, want -15", snap.Engine.Offset)
	}
	if snap.Engine.Status != logic.StatusOffset {
		t.Errorf("status: got %s, want OFFSET", snap.Engine.Status)
	}
	want := logic.AutoPercent(2048) - 15
	if d, _ := r.board.LastDuty(); d != want {
		t.Errorf("duty: got %d, want %d", d, want)
	}

	r.enc.Click(r.now, 1200*time.Millisecond)
	r.run(time.Second, 2048, 60)
	if r.engine.Offset() != 0 {
		t.Errorf("offset after long press: got %d, want 0", r.engine.Offset())
	}
	if !r.engine.LightEnabled() {
		t.Error("long press must not switch the light off")
	}
}

func TestIntegrationSensorErrorsHoldState(t *testing.T) {
	p := awayPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	r.click()
	r.run(2*time.Second, 1000, 60)

	// A dead ultrasonic sensor must not be mistaken for the user leaving.
	for i := 0; i < 500; i++ {
		r.now = r.now.Add(10 * time.Millisecond)
		r.board.SetLight(1000)
		r.board.FailDistance()
		r.step()
	}
	if present, _ := r.engine.Presence(); !present {
		t.Error("distance errors must not end presence")
	}
	if st := r.tracker.Snapshot().Engine.DistanceStatus; st != logic.SensorError {
		t.Errorf("distance status: got %s, want error", st)
	}
}

func TestIntegrationFaultForcesOutputOff(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	r.click()
	r.run(2*time.Second, 1000, 60)
	if d, _ := r.board.LastDuty(); d == 0 {
		t.Fatal("expected light on before fault")
	}

	for _, ev := range r.engine.SetFault(r.now, true) {
		_ = r.pub.Publish(ev)
	}
	r.run(100*time.Millisecond, 1000, 60)

	if d, _ := r.board.LastDuty(); d != 0 {
		t.Errorf("duty under fault: got %d, want 0", d)
	}
	snap := r.tracker.Snapshot()
	if snap.Engine.Status != logic.StatusFault {
		t.Errorf("status: got %s, want FAULT", snap.Engine.Status)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(snap), &sj); err != nil {
		t.Fatalf("unmarshal status JSON: %v", err)
	}
	if sj.Status.State != "FAULT" || !sj.Status.Fault {
		t.Errorf("status JSON: state=%q fault=%t", sj.Status.State, sj.Status.Fault)
	}
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	r := newRig(p)
	r.pub.PublishError = errors.New("broker unreachable")

	r.click()
	r.run(2*time.Second, 1000, 60)

	if len(r.pub.Events) != 0 {
		t.Errorf("expected nothing recorded, got %v", r.types())
	}
	if !r.engine.LightEnabled() {
		t.Error("engine should keep running when publishing fails")
	}
	if d, _ := r.board.LastDuty(); d != logic.AutoPercent(1000) {
		t.Errorf("duty: got %d, want %d", d, logic.AutoPercent(1000))
	}
}

func TestIntegrationDutyWrittenOnlyOnChange(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	r.run(5*time.Second, 1000, 60)
	if len(r.board.Duties) != 1 {
		t.Errorf("duties while idle: got %v, want a single write", r.board.Duties)
	}
}

// --- lifecycle payloads ---

func systemPayload(t *testing.T, r *rig, event, reason string) status.StatusInner {
	t.Helper()
	raw := status.FormatStatusEvent(r.tracker.Snapshot(), event, reason)
	se := mqtt.SystemEvent{Timestamp: r.now, Event: event, Reason: reason, RawPayload: raw, Retained: event != "HEARTBEAT"}
	if err := r.pub.PublishSystem(se); err != nil {
		t.Fatalf("publish %s: %v", event, err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(r.pub.SystemPayloads[len(r.pub.SystemPayloads)-1], &sj); err != nil {
		t.Fatalf("unmarshal %s payload: %v", event, err)
	}
	return sj.Status
}

func TestIntegrationStartupEvent(t *testing.T) {
	r := newRig(logic.DefaultPolicy())

	inner := systemPayload(t, r, "STARTUP", "")
	if inner.Event != "STARTUP" {
		t.Errorf("event: got %q, want STARTUP", inner.Event)
	}
	if inner.State != "BOOT" {
		t.Errorf("state: got %q, want BOOT", inner.State)
	}
	if inner.Session != "integration" {
		t.Errorf("session: got %q", inner.Session)
	}
	if !r.pub.SystemEvents[0].Retained {
		t.Error("STARTUP should be retained")
	}
}

func TestIntegrationHeartbeatAfterActivity(t *testing.T) {
	p := awayPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	r.click()
	r.run(2*time.Second, 1000, 60)
	r.run(6*time.Second, 1000, 200)
	r.tracker.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "10.0.0.7", Status: "connected"})

	hb := r.engine.CheckHeartbeat(r.now, time.Second)
	if hb == nil {
		t.Fatal("expected heartbeat to be due")
	}
	if hb.Counts.PresenceLost != 1 || hb.Counts.LightOn != 1 {
		t.Errorf("heartbeat counts: got %+v", hb.Counts)
	}

	inner := systemPayload(t, r, "HEARTBEAT", "")
	if inner.State != "NO_USER" {
		t.Errorf("state: got %q, want NO_USER", inner.State)
	}
	if inner.Presence.Present || inner.Presence.Reason != "away" {
		t.Errorf("presence: got %+v", inner.Presence)
	}
	if inner.Counts.PresenceLost != 1 {
		t.Errorf("event_counts.presence_lost: got %d, want 1", inner.Counts.PresenceLost)
	}
	if inner.Network == nil || inner.Network.IP != "10.0.0.7" {
		t.Errorf("network: got %+v", inner.Network)
	}
	if r.pub.SystemEvents[0].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
}

func TestIntegrationShutdownEvent(t *testing.T) {
	p := logic.DefaultPolicy()
	p.BootSetupMs = 0
	r := newRig(p)

	r.click()
	r.run(2*time.Second, 1000, 60)

	inner := systemPayload(t, r, "SHUTDOWN", "SIGTERM")
	if inner.Event != "SHUTDOWN" || inner.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", inner.Event, inner.Reason)
	}
	if !inner.Light.Enabled {
		t.Error("shutdown payload should show the light enabled")
	}
	if inner.Light.OutputPercent != logic.AutoPercent(1000) {
		t.Errorf("output_percent: got %d, want %d", inner.Light.OutputPercent, logic.AutoPercent(1000))
	}
	if inner.Config.SerialPort != "/dev/ttyAMA0" {
		t.Errorf("config.serial_port: got %q", inner.Config.SerialPort)
	}
}

func TestIntegrationShutdownPublishFailure(t *testing.T) {
	r := newRig(logic.DefaultPolicy())
	r.pub.PublishSystemError = errors.New("connection lost")

	err := r.pub.PublishSystem(mqtt.SystemEvent{Timestamp: r.now, Event: "SHUTDOWN", Reason: "SIGINT"})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if len(r.pub.SystemEvents) != 0 {
		t.Error("failed publish should not be recorded")
	}
}
